package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-quote/internal/catalog"
)

func TestNormalizeReference(t *testing.T) {
	cases := map[string]string{
		"0012-AB":     "12AB",
		"12-ab":       "12AB",
		" 12 ab ":     "12AB",
		"００１２－ＡＢ":     "12AB",
		"000":         "0",
		"0-0":         "0",
		"":            "",
		"  - ":        "",
		"04465-33450": "446533450",
	}
	for in, want := range cases {
		require.Equal(t, want, catalog.NormalizeReference(in), "input %q", in)
	}
}

func TestSplitReferences(t *testing.T) {
	require.Equal(t, []string{"12-AB", "12AB-ALT"}, catalog.SplitReferences("12-AB / 12AB-ALT"))
	require.Empty(t, catalog.SplitReferences(" / "))
}
