package postgres

import (
	"testing"
	"time"

	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/lib/pq"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoiceWhereNumbersPlaceholders(t *testing.T) {
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	f := types.NewInvoiceFilter()
	f.ClientID = "client_1"
	f.Statuses = []types.InvoiceStatus{types.InvoiceStatusSent, types.InvoiceStatusPartial}
	f.DueBefore = &due

	w := invoiceWhere(f)
	assert.Equal(t, " WHERE client_id = $1 AND invoice_status = ANY($2) AND due_date < $3", w.String())
	require.Len(t, w.args, 3)
	assert.Equal(t, "client_1", w.args[0])
	assert.Equal(t, due, w.args[2])

	page := w.page(f.QueryFilter, invoiceSortColumns)
	assert.Equal(t, " ORDER BY created_at DESC, id DESC LIMIT $4 OFFSET $5", page)
	assert.Equal(t, []interface{}{50, 0}, w.args[3:])
}

func TestPageRejectsUnknownSortColumn(t *testing.T) {
	qf := &types.QueryFilter{
		Sort:  lo.ToPtr("total; DROP TABLE invoices"),
		Order: lo.ToPtr(types.OrderAsc),
	}
	w := &where{}
	assert.Equal(t, " ORDER BY created_at ASC, id ASC", w.page(qf, invoiceSortColumns))
	assert.Empty(t, w.args)

	qf.Sort = lo.ToPtr("due_date")
	assert.Equal(t, " ORDER BY due_date ASC, id ASC", w.page(qf, invoiceSortColumns))
}

func TestEmptyWhere(t *testing.T) {
	assert.Equal(t, "", invoiceWhere(nil).String())
	assert.Equal(t, "", promotionWhere(types.NewPromotionFilter(), time.Now()).String())

	active := types.NewPromotionFilter()
	active.ActiveOnly = true
	w := promotionWhere(active, time.Now())
	assert.Equal(t, " WHERE active AND (start_date IS NULL OR start_date <= $1) AND (end_date IS NULL OR end_date >= $2)", w.String())
}

func TestIsUniqueViolation(t *testing.T) {
	err := &pq.Error{Code: pqUniqueViolation, Constraint: invoiceNumberConstraint}
	assert.True(t, isUniqueViolation(err, invoiceNumberConstraint))
	assert.True(t, isUniqueViolation(err, ""))
	assert.False(t, isUniqueViolation(err, promotionCodeConstraint))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}, ""))
	assert.False(t, isUniqueViolation(assert.AnError, ""))
}
