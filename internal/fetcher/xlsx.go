package fetcher

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions selects which sheet and rows of a workbook to read.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	SkipRows   int    // preamble rows to drop before data starts
}

// ReadXLSX loads one sheet of an XLSX workbook and returns its rows as
// string slices. Vendor exports often ship as workbooks with a title row or
// two above the header; SkipRows drops those so the first returned row is
// the header itself.
func ReadXLSX(path string, opts XLSXOptions) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open workbook %s", path)
	}

	sheet, err := sheetFor(f, opts)
	if err != nil {
		return nil, err
	}

	start := opts.SkipRows
	if start < 0 {
		start = 0
	}
	if start > len(sheet.Rows) {
		start = len(sheet.Rows)
	}

	rows := make([][]string, 0, len(sheet.Rows)-start)
	for _, row := range sheet.Rows[start:] {
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			cells[i] = cell.String()
		}
		rows = append(rows, cells)
	}

	return rows, nil
}

func sheetFor(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("fetcher: workbook has no sheet %q", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex < 0 || opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("fetcher: sheet index %d out of range, workbook has %d sheets", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}
