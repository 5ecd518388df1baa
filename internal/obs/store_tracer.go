package obs

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const maxStatementLen = 300

type storeSpanKey struct{}

// StoreTracer traces catalog and profit tier statements issued through pgx.
// Spans are named "<operation> <table>", for example "SELECT catalog_products".
type StoreTracer struct{}

var (
	_ pgx.QueryTracer = StoreTracer{}
	_ pgx.BatchTracer = StoreTracer{}
)

// TraceQueryStart implements pgx.QueryTracer.
func (StoreTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	op, table := summarizeSQL(data.SQL)
	name := op
	if table != "" {
		name += " " + table
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		semconv.DBSystemPostgreSQL,
		semconv.DBOperationName(op),
		semconv.DBQueryText(truncateSQL(data.SQL)),
	)
	if table != "" {
		span.SetAttributes(semconv.DBCollectionName(table))
	}
	return context.WithValue(ctx, storeSpanKey{}, span)
}

// TraceQueryEnd implements pgx.QueryTracer.
func (StoreTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	endStoreSpan(ctx, data.Err, attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
}

// TraceBatchStart implements pgx.BatchTracer.
func (StoreTracer) TraceBatchStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceBatchStartData) context.Context {
	size := 0
	if data.Batch != nil {
		size = data.Batch.Len()
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "BATCH", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(semconv.DBSystemPostgreSQL, attribute.Int("db.batch.size", size))
	return context.WithValue(ctx, storeSpanKey{}, span)
}

// TraceBatchQuery implements pgx.BatchTracer.
func (StoreTracer) TraceBatchQuery(ctx context.Context, _ *pgx.Conn, data pgx.TraceBatchQueryData) {
	span, ok := ctx.Value(storeSpanKey{}).(trace.Span)
	if !ok || data.Err == nil {
		return
	}
	op, table := summarizeSQL(data.SQL)
	span.RecordError(data.Err, trace.WithAttributes(
		semconv.DBOperationName(op),
		semconv.DBCollectionName(table),
	))
}

// TraceBatchEnd implements pgx.BatchTracer.
func (StoreTracer) TraceBatchEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceBatchEndData) {
	endStoreSpan(ctx, data.Err)
}

func endStoreSpan(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	span, ok := ctx.Value(storeSpanKey{}).(trace.Span)
	if !ok {
		return
	}
	span.SetAttributes(attrs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// summarizeSQL returns the leading verb and the first table the statement
// touches. It only understands the plain statements this service issues.
func summarizeSQL(sql string) (op, table string) {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "QUERY", ""
	}
	op = strings.ToUpper(fields[0])
	var after string
	switch op {
	case "SELECT", "DELETE":
		after = "FROM"
	case "INSERT":
		after = "INTO"
	case "UPDATE":
		if len(fields) > 1 {
			return op, cleanTable(fields[1])
		}
		return op, ""
	default:
		return op, ""
	}
	for i, f := range fields[:len(fields)-1] {
		if strings.EqualFold(f, after) {
			return op, cleanTable(fields[i+1])
		}
	}
	return op, ""
}

func cleanTable(s string) string {
	s = strings.TrimRight(s, ";,(")
	return strings.Trim(s, `"`)
}

func truncateSQL(sql string) string {
	trimmed := strings.Join(strings.Fields(sql), " ")
	if len(trimmed) > maxStatementLen {
		return trimmed[:maxStatementLen] + "..."
	}
	return trimmed
}
