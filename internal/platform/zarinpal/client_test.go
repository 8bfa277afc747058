package zarinpal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRequestPayment_Success(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"code":100,"authority":"A000123"}}`))
	}))
	defer srv.Close()

	c := NewClient(Options{
		BaseURL:    srv.URL,
		PayURL:     "https://www.zarinpal.com/pg/StartPay",
		MerchantID: "merchant-1",
		Timeout:    5 * time.Second,
	})

	res, err := c.RequestPayment(context.Background(), &PaymentRequest{
		Amount:      500000,
		CallbackURL: "https://pay.example.com/cb",
		Description: "Intro to Algebra",
		Email:       "reza@example.com",
		Mobile:      "09123334444",
	})
	require.NoError(t, err)
	require.Equal(t, CodeSuccess, res.Code)
	require.Equal(t, "A000123", res.Authority)
	require.Equal(t, "https://www.zarinpal.com/pg/StartPay/A000123", res.RedirectURL)

	require.Equal(t, "/pg/v4/payment/request.json", gotPath)
	require.Equal(t, "merchant-1", gotBody["merchant_id"])
	require.EqualValues(t, 500000, gotBody["amount"])
	meta := gotBody["metadata"].(map[string]any)
	require.Equal(t, "reza@example.com", meta["email"])
	require.Equal(t, "09123334444", meta["mobile"])
}

func TestRequestPayment_RejectionHasNoRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"code":-9},"errors":{"code":-9,"message":"validation error"}}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, MerchantID: "merchant-1"})
	res, err := c.RequestPayment(context.Background(), &PaymentRequest{Amount: 1000})
	require.NoError(t, err)
	require.Equal(t, -9, res.Code)
	require.Empty(t, res.Authority)
	require.Empty(t, res.RedirectURL)
}

func TestVerifyPayment_CodeMapping(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		code    int
		refID   string
		success bool
	}{
		{"confirmed", `{"data":{"code":100,"ref_id":201004}}`, 100, "201004", true},
		{"already verified", `{"data":{"code":101,"ref_id":201004}}`, 101, "201004", true},
		{"rejected", `{"data":{"code":-51}}`, -51, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var gotPath string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewClient(Options{BaseURL: srv.URL, MerchantID: "merchant-1"})
			res, err := c.VerifyPayment(context.Background(), &VerifyRequest{Amount: 500000, Authority: "A000123"})
			require.NoError(t, err)
			require.Equal(t, "/pg/v4/payment/verify.json", gotPath)
			require.Equal(t, tc.code, res.Code)
			require.Equal(t, tc.refID, res.ReferenceID)
			require.Equal(t, tc.success, res.Success())
		})
	}
}

func TestVerifyPayment_HTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, MerchantID: "merchant-1"})
	_, err := c.VerifyPayment(context.Background(), &VerifyRequest{Amount: 500000, Authority: "A000123"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 502")
}

func TestVerifyPayment_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, MerchantID: "merchant-1"})
	_, err := c.VerifyPayment(context.Background(), &VerifyRequest{Amount: 500000, Authority: "A000123"})
	require.Error(t, err)
}

func TestVerifyResult_SuccessOnNil(t *testing.T) {
	var res *VerifyResult
	require.False(t, res.Success())
}
