package export_test

import (
	"bytes"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/backend-quote/internal/export"
)

func sampleTable() export.Table {
	return export.Table{
		Sheet:   "Reconciliation",
		Title:   "Price check",
		Summary: []string{"Exchange rate: 7.0", "Rows: 2"},
		Columns: []export.Column{
			{Header: "No.", Kind: export.KindInt},
			{Header: "Reference", Kind: export.KindText},
			{Header: "Computed Price", Kind: export.KindMoney},
			{Header: "Image", Kind: export.KindImage},
		},
		Rows: []export.Row{
			{Cells: []any{1, "12-AB", decimal.RequireFromString("100.80"), "p1.png"}},
			{Cells: []any{2, "99-ZZ", nil, ""}, Highlight: true},
		},
	}
}

func TestWriteXLSX(t *testing.T) {
	dir := t.TempDir()
	img := imaging.New(200, 100, color.NRGBA{R: 200, A: 255})
	require.NoError(t, imaging.Save(img, filepath.Join(dir, "p1.png")))

	var buf bytes.Buffer
	w := export.Writer{Images: export.DirImages{Root: dir}, ThumbnailPx: 32, Logger: zerolog.Nop()}
	require.NoError(t, w.WriteXLSX(&buf, sampleTable()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	title, err := f.GetCellValue("Reconciliation", "A1")
	require.NoError(t, err)
	require.Equal(t, "Price check", title)

	// title, two summary lines, a spacer, then the header row
	header, err := f.GetCellValue("Reconciliation", "B5")
	require.NoError(t, err)
	require.Equal(t, "Reference", header)

	ref, err := f.GetCellValue("Reconciliation", "B7")
	require.NoError(t, err)
	require.Equal(t, "99-ZZ", ref)

	price, err := f.GetCellValue("Reconciliation", "C6", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Equal(t, "100.8", price)

	pics, err := f.GetPictures("Reconciliation", "D6")
	require.NoError(t, err)
	require.Len(t, pics, 1)
}

func TestWriteXLSXRejectsRaggedRows(t *testing.T) {
	table := sampleTable()
	table.Rows[0].Cells = table.Rows[0].Cells[:2]
	err := export.Writer{}.WriteXLSX(&bytes.Buffer{}, table)
	require.Error(t, err)
}

func TestDirImagesThumbnail(t *testing.T) {
	dir := t.TempDir()
	src := image.NewNRGBA(image.Rect(0, 0, 300, 150))
	require.NoError(t, imaging.Save(src, filepath.Join(dir, "wide.png")))

	data, err := export.DirImages{Root: dir}.Thumbnail("https://cdn.example/img/wide.png", 60)
	require.NoError(t, err)
	thumb, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 60, thumb.Bounds().Dx())
	require.Equal(t, 30, thumb.Bounds().Dy())

	_, err = export.DirImages{Root: dir}.Thumbnail("missing.png", 60)
	require.ErrorIs(t, err, export.ErrNoImage)
}
