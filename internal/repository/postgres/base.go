package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sentrygo "github.com/getsentry/sentry-go"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/postgres"
	"github.com/ledgerline/ledgerline/internal/sentry"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/lib/pq"
)

const (
	spanOp = "db.postgres"

	pqUniqueViolation = "23505"
)

// Documents are stored as JSONB next to the columns that are filtered on or
// guarded by conditional writes.
type documentRow struct {
	Data []byte `db:"data"`
}

type baseRepository struct {
	db     *postgres.DB
	logger *logger.Logger
	sentry *sentry.Service
}

func (r *baseRepository) startSpan(ctx context.Context, entity, operation string, params map[string]interface{}) (*sentrygo.Span, context.Context) {
	return r.sentry.StartDBSpan(ctx, spanOp, entity+"."+operation, params)
}

func finishSpan(span *sentrygo.Span, err error) {
	if span == nil {
		return
	}
	if err != nil && !ierr.IsNotFound(err) {
		span.Status = sentrygo.SpanStatusInternalError
	} else {
		span.Status = sentrygo.SpanStatusOK
	}
	sentry.FinishSpan(span)
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == pqUniqueViolation && (constraint == "" || pqErr.Constraint == constraint)
}

func encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to encode document").
			Mark(ierr.ErrSystem)
	}
	return data, nil
}

func decodeRows[T any](rows []documentRow) ([]*T, error) {
	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		item, err := decode[T](row.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func decode[T any](data []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to decode stored document").
			Mark(ierr.ErrDatabase)
	}
	return &v, nil
}

func dbError(err error, hint string, details map[string]any) error {
	return ierr.WithError(err).
		WithHint(hint).
		WithReportableDetails(details).
		Mark(ierr.ErrDatabase)
}

// where accumulates AND-ed conditions with positional arguments. Each clause
// carries a single %d verb for its placeholder.
type where struct {
	clauses []string
	args    []interface{}
}

func (w *where) add(clause string, arg interface{}) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// page renders ORDER BY, LIMIT and OFFSET. Sort fields outside allowed fall
// back to created_at.
func (w *where) page(qf *types.QueryFilter, allowed map[string]string) string {
	var f types.QueryFilter
	if qf != nil {
		f = *qf
	}
	column, ok := allowed[f.GetSort()]
	if !ok {
		column = "created_at"
	}
	order := "DESC"
	if f.GetOrder() == types.OrderAsc {
		order = "ASC"
	}

	clause := fmt.Sprintf(" ORDER BY %s %s, id %s", column, order, order)
	if f.IsUnlimited() {
		return clause
	}
	w.args = append(w.args, f.GetLimit(), f.GetOffset())
	return clause + fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(w.args)-1, len(w.args))
}
