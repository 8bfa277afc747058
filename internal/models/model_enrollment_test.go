package models

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestEnrollment_IsTerminal(t *testing.T) {
	require.False(t, (&Enrollment{Status: EnrollmentStatusPending}).IsTerminal())
	require.True(t, (&Enrollment{Status: EnrollmentStatusCompleted}).IsTerminal())
	require.True(t, (&Enrollment{Status: EnrollmentStatusFailed}).IsTerminal())

	var nilEnr *Enrollment
	require.False(t, nilEnr.IsTerminal())
}

func TestEnrollment_Purchasable(t *testing.T) {
	require.Equal(t, "c1", (&Enrollment{CourseID: lo.ToPtr("c1")}).Purchasable())
	require.Equal(t, "t1", (&Enrollment{TestID: lo.ToPtr("t1")}).Purchasable())
	require.Empty(t, (&Enrollment{}).Purchasable())

	var nilEnr *Enrollment
	require.Empty(t, nilEnr.Purchasable())
}

func TestWebhookEndpoint_SubscribedTo(t *testing.T) {
	ep := &WebhookEndpoint{
		EventTypes: datatypes.NewJSONSlice([]string{string(OutboxEventEnrollmentCompleted)}),
	}
	require.True(t, ep.SubscribedTo(OutboxEventEnrollmentCompleted))
	require.False(t, ep.SubscribedTo(OutboxEventEnrollmentRejected))

	var nilEp *WebhookEndpoint
	require.False(t, nilEp.SubscribedTo(OutboxEventEnrollmentCompleted))
}

func TestDispatchLog_Succeeded(t *testing.T) {
	require.True(t, (&DispatchLog{}).Succeeded())
	require.False(t, (&DispatchLog{Error: lo.ToPtr("boom")}).Succeeded())

	var nilLog *DispatchLog
	require.False(t, nilLog.Succeeded())
}
