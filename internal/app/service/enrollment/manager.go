package enrollment

import (
	"gorm.io/gorm/clause"

	"github.com/parsalearn/enrollpay/internal/models"
	"github.com/parsalearn/enrollpay/pkg/types"
)

// Scan enrollment request/response, used by admin list pages.
type ScanEnrollmentsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanEnrollmentsResponse struct {
	Items []*models.Enrollment `json:"items"`
	Total int64                `json:"total"`
}

// filtersAnd combines multiple CommonFilter into a single clause.Expression.
type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.filters))
	for _, f := range w.filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

func orderBy(column, order string) clause.OrderBy {
	return clause.OrderBy{Columns: []clause.OrderByColumn{{
		Column: clause.Column{Name: column},
		Desc:   order != "asc",
	}}}
}
