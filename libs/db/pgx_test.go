package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStatementVerb(t *testing.T) {
	assert.Equal(t, "UPDATE", statementVerb("update appointments SET status = $1"))
	assert.Equal(t, "SELECT", statementVerb("\n  -- claim a batch\n  SELECT id FROM outbox_events"))
	assert.Equal(t, "QUERY", statementVerb("  "))
}

func TestQueryTracerRecordsStatements(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	qt := queryTracer{tracer: tp.Tracer("test")}
	ctx := context.Background()

	end := qt.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "UPDATE appointments SET status = $1"})
	qt.TraceQueryEnd(end, nil, pgx.TraceQueryEndData{CommandTag: pgconn.NewCommandTag("UPDATE 1")})

	end = qt.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "INSERT INTO appointments VALUES ($1)"})
	qt.TraceQueryEnd(end, nil, pgx.TraceQueryEndData{Err: &pgconn.PgError{Code: "23P01"}})

	end = qt.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	qt.TraceQueryEnd(end, nil, pgx.TraceQueryEndData{Err: pgx.ErrNoRows})

	spans := exp.GetSpans()
	require.Len(t, spans, 3)
	assert.Equal(t, "db UPDATE", spans[0].Name)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
	assert.Equal(t, "db INSERT", spans[1].Name)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Equal(t, codes.Unset, spans[2].Status.Code)
}

func TestErrorClassifiers(t *testing.T) {
	assert.True(t, IsNotFound(pgx.ErrNoRows))
	assert.True(t, IsExclusionViolation(errors.Join(errors.New("insert"), &pgconn.PgError{Code: "23P01"})))
	assert.False(t, IsExclusionViolation(&pgconn.PgError{Code: "23505"}))
}
