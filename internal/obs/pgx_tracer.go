package obs

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PGXTracer opens a client span per statement and logs statements slower
// than Slow on the request logger. A zero Slow disables the log.
type PGXTracer struct {
	Slow time.Duration
}

type queryStartKey struct{}

type queryStart struct {
	at  time.Time
	op  string
	sql string
}

func (t PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	sql := compactSQL(data.SQL)
	op := "QUERY"
	if verb, _, _ := strings.Cut(sql, " "); verb != "" {
		op = strings.ToUpper(verb)
	}
	ctx, _ = otel.Tracer("maplefresh/pgx").Start(ctx, "db "+strings.ToLower(op),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation.name", op),
			attribute.String("db.query.text", sql),
		),
	)
	return context.WithValue(ctx, queryStartKey{}, queryStart{at: time.Now(), op: op, sql: sql})
}

func (t PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span := trace.SpanFromContext(ctx)
	defer span.End()
	if data.Err != nil {
		span.RecordError(data.Err)
		span.SetStatus(codes.Error, data.Err.Error())
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))

	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok || t.Slow <= 0 {
		return
	}
	if took := time.Since(start.at); took >= t.Slow {
		zerolog.Ctx(ctx).Warn().
			Str("op", start.op).
			Str("sql", start.sql).
			Dur("took", took).
			Msg("slow query")
	}
}

// compactSQL collapses whitespace and caps the statement at 300 bytes.
func compactSQL(sql string) string {
	s := strings.Join(strings.Fields(sql), " ")
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	return s
}
