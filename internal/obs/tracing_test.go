package obs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracerWithoutExporter(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	shutdown, err := InitTracer(context.Background(), TracingConfig{Exporter: "none", Environment: "test"})
	require.NoError(t, err)
	_, span := otel.Tracer("test").Start(context.Background(), "quote.calculate")
	require.True(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, shutdown(context.Background()))
}

func TestInitTracerRejectsUnknownExporter(t *testing.T) {
	_, err := InitTracer(context.Background(), TracingConfig{Exporter: "zipkin"})
	require.ErrorContains(t, err, "zipkin")
}

func TestSummarizeSQL(t *testing.T) {
	cases := []struct {
		sql, op, table string
	}{
		{"SELECT id, oe_number FROM catalog_products WHERE id = $1", "SELECT", "catalog_products"},
		{"\nINSERT INTO catalog_products (id, name) VALUES ($1, $2)", "INSERT", "catalog_products"},
		{"DELETE FROM profit_tiers", "DELETE", "profit_tiers"},
		{`UPDATE "profit_tiers" SET rate = $1`, "UPDATE", "profit_tiers"},
		{"begin", "BEGIN", ""},
		{"   ", "QUERY", ""},
	}
	for _, tc := range cases {
		op, table := summarizeSQL(tc.sql)
		require.Equal(t, tc.op, op, tc.sql)
		require.Equal(t, tc.table, table, tc.sql)
	}
}
