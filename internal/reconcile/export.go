package reconcile

import (
	"fmt"

	"github.com/noah-isme/backend-quote/internal/export"
)

var tableColumns = []export.Column{
	{Header: "Row", Kind: export.KindInt, Width: 6},
	{Header: "Reference", Kind: export.KindText, Width: 22},
	{Header: "Product ID", Kind: export.KindText},
	{Header: "Brand", Kind: export.KindText, Width: 10},
	{Header: "Status", Kind: export.KindText, Width: 12},
	{Header: "Band Min", Kind: export.KindMoney},
	{Header: "Band Avg", Kind: export.KindMoney},
	{Header: "Band Max", Kind: export.KindMoney},
	{Header: "Computed Price", Kind: export.KindMoney},
	{Header: "Customer Price", Kind: export.KindMoney},
	{Header: "Variance", Kind: export.KindMoney},
	{Header: "Variance %", Kind: export.KindPercent},
	{Header: "Quantity", Kind: export.KindInt},
	{Header: "Remark", Kind: export.KindText, Width: 24},
	{Header: "Image", Kind: export.KindImage},
}

// Table renders a reconciliation in row order. Rows that were not priced are
// highlighted.
func Table(res Result) export.Table {
	rows := make([]export.Row, 0, len(res.Items))
	for _, it := range res.Items {
		var productID, brand, image string
		if it.Product != nil {
			productID, brand, image = it.Product.ID, it.Product.BrandCode, it.Product.ImageURL
		}
		rows = append(rows, export.Row{
			Cells: []any{
				it.RowIndex, it.Reference, productID, brand, string(it.Status),
				it.OurPriceMin, it.OurPriceAvg, it.OurPriceMax,
				it.ComputedPrice, it.CustomerPriceUsd, it.Variance, it.VariancePercent,
				it.Quantity, it.Remark, image,
			},
			Highlight: it.ComputedPrice == nil,
		})
	}
	summary := []string{
		fmt.Sprintf("Exchange rate: %s  Price mode: %s  Customer currency: %s",
			res.ExchangeRate.String(), res.PriceMode, res.CustomerCurrency),
		fmt.Sprintf("Rows: %d  Matched: %d  Unmatched: %d  Priced: %d",
			res.TotalRows, res.MatchedCount, res.UnmatchedCount, res.PricedCount),
		fmt.Sprintf("Customer total: %s  Our total: %s  Difference: %s",
			res.CustomerTotalUsd.StringFixed(2), res.OurTotalUsd.StringFixed(2), res.TotalDiffUsd.StringFixed(2)),
	}
	if res.Incomplete {
		summary = append(summary, fmt.Sprintf("Incomplete: %d rows were not processed", res.PendingCount))
	}
	return export.Table{
		Sheet:   "Reconciliation",
		Title:   "Price Reconciliation",
		Summary: summary,
		Columns: tableColumns,
		Rows:    rows,
	}
}
