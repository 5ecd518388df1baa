package quote

import (
	"fmt"

	"github.com/noah-isme/backend-quote/internal/export"
)

var tableColumns = []export.Column{
	{Header: "No.", Kind: export.KindInt, Width: 6},
	{Header: "Reference", Kind: export.KindText, Width: 22},
	{Header: "Product ID", Kind: export.KindText},
	{Header: "Brand", Kind: export.KindText, Width: 10},
	{Header: "Band Min", Kind: export.KindMoney},
	{Header: "Band Avg", Kind: export.KindMoney},
	{Header: "Band Max", Kind: export.KindMoney},
	{Header: "Computed Price", Kind: export.KindMoney},
	{Header: "Customer Price", Kind: export.KindMoney},
	{Header: "Variance", Kind: export.KindMoney},
	{Header: "Variance %", Kind: export.KindPercent},
	{Header: "Quantity", Kind: export.KindInt},
	{Header: "Subtotal", Kind: export.KindMoney},
	{Header: "Remark", Kind: export.KindText, Width: 24},
	{Header: "Image", Kind: export.KindImage},
}

// Table renders a quote result in line order. Lines without a price are
// highlighted and carry their error in the remark column.
func Table(res Result) export.Table {
	rows := make([]export.Row, 0, len(res.Items))
	for _, it := range res.Items {
		remark := it.Remark
		if it.Error != "" {
			remark = joinRemark(remark, it.Error)
		}
		if it.Locked {
			remark = joinRemark(remark, "locked")
		}
		rows = append(rows, export.Row{
			Cells: []any{
				it.LineNo, it.OENumber, it.ProductID, it.BrandCode,
				it.OurPriceMin, it.OurPriceAvg, it.OurPriceMax,
				it.UnitPrice, nil, nil, nil,
				it.Quantity, it.Subtotal, remark, it.ImageURL,
			},
			Highlight: it.UnitPrice == nil,
		})
	}
	return export.Table{
		Sheet: "Quote",
		Title: "Quotation",
		Summary: []string{
			fmt.Sprintf("Exchange rate: %s  Price mode: %s  Tax: %t (%s)  FOB: %t (%s)",
				res.ExchangeRate.String(), res.PriceMode, res.IncludeTax, res.TaxRate.String(), res.IsFob, res.FobRate.String()),
			fmt.Sprintf("Lines: %d  Priced: %d  Total quantity: %d  Total amount: %s",
				len(res.Items), res.PricedCount, res.TotalCount, res.TotalAmount.StringFixed(2)),
		},
		Columns: tableColumns,
		Rows:    rows,
	}
}

func joinRemark(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
