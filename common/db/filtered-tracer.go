package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
)

// FilteredTracer forwards to inner except for queries whose SQL contains
// one of skip. sqlc puts "-- name: X" at the top of every query, so
// individual queries can be silenced by name.
type FilteredTracer struct {
	inner pgx.QueryTracer
	skip  []string
}

// NewFilteredTracer lowercases the skip markers once
func NewFilteredTracer(inner pgx.QueryTracer, skip ...string) *FilteredTracer {
	lowered := make([]string, len(skip))
	for i, s := range skip {
		lowered[i] = strings.ToLower(s)
	}
	return &FilteredTracer{inner: inner, skip: lowered}
}

// skipCtxKey is a unique type to store skip flag in context
type skipCtxKey struct{}

func (t *FilteredTracer) skipped(sql string) bool {
	sql = strings.ToLower(sql)
	for _, s := range t.skip {
		if strings.Contains(sql, s) {
			return true
		}
	}
	return false
}

func (t *FilteredTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if t.skipped(data.SQL) {
		return context.WithValue(ctx, skipCtxKey{}, true)
	}
	return t.inner.TraceQueryStart(ctx, conn, data)
}

func (t *FilteredTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	if ctx.Value(skipCtxKey{}) != nil {
		return
	}
	t.inner.TraceQueryEnd(ctx, conn, data)
}
