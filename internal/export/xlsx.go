package export

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// ContentTypeXLSX is the media type of the workbook produced by Writer.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Writer renders tables to xlsx workbooks.
type Writer struct {
	Images      Images
	ThumbnailPx int
	Logger      zerolog.Logger
}

type styles struct {
	title, header, text, integer, money, percent int
	highlight                                    map[Kind]int
}

// WriteXLSX writes t as a single-sheet workbook to out.
func (wr Writer) WriteXLSX(out io.Writer, t Table) error {
	if err := t.Validate(); err != nil {
		return err
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := t.Sheet
	if sheet == "" {
		sheet = "Sheet1"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	st, err := newStyles(f)
	if err != nil {
		return err
	}

	row := 1
	lastCol, _ := excelize.ColumnNumberToName(len(t.Columns))
	if t.Title != "" {
		if err := f.SetCellValue(sheet, "A1", t.Title); err != nil {
			return err
		}
		_ = f.MergeCell(sheet, "A1", lastCol+"1")
		_ = f.SetCellStyle(sheet, "A1", "A1", st.title)
		row++
	}
	for _, line := range t.Summary {
		cell := fmt.Sprintf("A%d", row)
		if err := f.SetCellValue(sheet, cell, line); err != nil {
			return err
		}
		_ = f.MergeCell(sheet, cell, fmt.Sprintf("%s%d", lastCol, row))
		row++
	}
	if t.Title != "" || len(t.Summary) > 0 {
		row++
	}

	headerRow := row
	for i, c := range t.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, headerRow)
		if err := f.SetCellValue(sheet, cell, c.Header); err != nil {
			return err
		}
		name, _ := excelize.ColumnNumberToName(i + 1)
		width := c.Width
		if width <= 0 {
			width = defaultWidth(c.Kind)
		}
		if err := f.SetColWidth(sheet, name, name, width); err != nil {
			return err
		}
	}
	firstHeader, _ := excelize.CoordinatesToCellName(1, headerRow)
	lastHeader, _ := excelize.CoordinatesToCellName(len(t.Columns), headerRow)
	_ = f.SetCellStyle(sheet, firstHeader, lastHeader, st.header)
	_ = f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: headerRow, TopLeftCell: fmt.Sprintf("A%d", headerRow+1), ActivePane: "bottomLeft"})

	for _, r := range t.Rows {
		row++
		hasImage := false
		for i, c := range t.Columns {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			if c.Kind == KindImage {
				if wr.addImage(f, sheet, cell, r.Cells[i]) {
					hasImage = true
				}
				continue
			}
			if err := wr.setCell(f, sheet, cell, c.Kind, r.Cells[i]); err != nil {
				return err
			}
			_ = f.SetCellStyle(sheet, cell, cell, st.pick(c.Kind, r.Highlight))
		}
		if hasImage {
			_ = f.SetRowHeight(sheet, row, float64(wr.thumbPx())*0.75+4)
		}
	}

	return f.Write(out)
}

func (wr Writer) setCell(f *excelize.File, sheet, cell string, kind Kind, v any) error {
	if v == nil {
		return nil
	}
	if kind == KindText {
		return f.SetCellValue(sheet, cell, fmt.Sprint(v))
	}
	if n, ok := numeric(v); ok {
		return f.SetCellValue(sheet, cell, n)
	}
	if s, ok := v.(string); ok {
		return f.SetCellValue(sheet, cell, s)
	}
	return nil
}

func (wr Writer) addImage(f *excelize.File, sheet, cell string, v any) bool {
	ref, _ := v.(string)
	if ref == "" || wr.Images == nil {
		return false
	}
	data, err := wr.Images.Thumbnail(ref, wr.thumbPx())
	if err != nil {
		if !errors.Is(err, ErrNoImage) {
			wr.Logger.Warn().Err(err).Str("image", ref).Msg("export thumbnail failed")
		}
		return false
	}
	err = f.AddPictureFromBytes(sheet, cell, &excelize.Picture{
		Extension: ".png",
		File:      data,
		Format:    &excelize.GraphicOptions{AutoFit: true, Positioning: "oneCell"},
	})
	if err != nil {
		wr.Logger.Warn().Err(err).Str("image", ref).Msg("export picture insert failed")
		return false
	}
	return true
}

func (wr Writer) thumbPx() int {
	if wr.ThumbnailPx > 0 {
		return wr.ThumbnailPx
	}
	return 64
}

func newStyles(f *excelize.File) (styles, error) {
	var st styles
	var err error
	if st.title, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}}); err != nil {
		return st, err
	}
	if st.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#305496"}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	}); err != nil {
		return st, err
	}
	base := map[Kind]int{KindText: 0, KindInt: 1, KindMoney: 4, KindPercent: 2}
	st.highlight = make(map[Kind]int, len(base))
	for kind, numFmt := range base {
		plain, err := f.NewStyle(&excelize.Style{NumFmt: numFmt})
		if err != nil {
			return st, err
		}
		marked, err := f.NewStyle(&excelize.Style{
			NumFmt: numFmt,
			Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#FCE4D6"}},
		})
		if err != nil {
			return st, err
		}
		switch kind {
		case KindText:
			st.text = plain
		case KindInt:
			st.integer = plain
		case KindMoney:
			st.money = plain
		case KindPercent:
			st.percent = plain
		}
		st.highlight[kind] = marked
	}
	return st, nil
}

func (st styles) pick(kind Kind, highlight bool) int {
	if highlight {
		return st.highlight[kind]
	}
	switch kind {
	case KindInt:
		return st.integer
	case KindMoney:
		return st.money
	case KindPercent:
		return st.percent
	default:
		return st.text
	}
}

func defaultWidth(kind Kind) float64 {
	switch kind {
	case KindText:
		return 18
	case KindImage:
		return 12
	case KindInt:
		return 8
	default:
		return 14
	}
}
