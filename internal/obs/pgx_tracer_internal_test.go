package obs

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestPGXTracerLogsSlowQueries(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	ctx := logger.WithContext(context.Background())

	tracer := PGXTracer{Slow: time.Nanosecond}
	qctx := tracer.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "select *\n  from bookings where id = $1"})
	time.Sleep(time.Millisecond)
	tracer.TraceQueryEnd(qctx, nil, pgx.TraceQueryEndData{CommandTag: pgconn.NewCommandTag("SELECT 1")})
	require.Contains(t, buf.String(), `"message":"slow query"`)
	require.Contains(t, buf.String(), `"op":"SELECT"`)
	require.Contains(t, buf.String(), `select * from bookings where id = $1`)

	buf.Reset()
	quiet := PGXTracer{}
	qctx = quiet.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "insert into quotes values ($1)"})
	quiet.TraceQueryEnd(qctx, nil, pgx.TraceQueryEndData{CommandTag: pgconn.NewCommandTag("INSERT 0 1")})
	require.Empty(t, buf.String())
}

func TestCompactSQL(t *testing.T) {
	require.Equal(t, "select 1", compactSQL("  select\n\t1 "))
	long := compactSQL(string(bytes.Repeat([]byte("x"), 400)))
	require.Len(t, long, 303)
}
