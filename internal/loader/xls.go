package loader

import (
	"os"

	"github.com/extrame/xls"
	"github.com/rotisserie/eris"
)

// ReadXLS reads one sheet of a legacy BIFF (.xls) workbook as string rows.
func ReadXLS(path string, sheetIndex int) (rows [][]string, err error) {
	// The BIFF parser panics on some truncated files.
	defer func() {
		if r := recover(); r != nil {
			rows = nil
			err = eris.Errorf("xls: parse %s: %v", path, r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "xls: open file")
	}
	defer f.Close() //nolint:errcheck

	wb, err := xls.OpenReader(f, "utf-8")
	if err != nil {
		return nil, eris.Wrap(err, "xls: read workbook")
	}
	if wb == nil {
		return nil, eris.Errorf("xls: no workbook stream in %s", path)
	}

	if sheetIndex < 0 || sheetIndex >= wb.NumSheets() {
		return nil, eris.Errorf("xls: sheet index %d out of range (file has %d sheets)", sheetIndex, wb.NumSheets())
	}
	sheet := wb.GetSheet(sheetIndex)
	if sheet == nil {
		return nil, eris.Errorf("xls: sheet %d is empty", sheetIndex)
	}

	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheetRow(sheet, i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for j := 0; j < row.LastCol(); j++ {
			cells = append(cells, row.Col(j))
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// sheetRow returns row i, or nil when the sheet has no record for it.
// WorkSheet.Row dereferences missing rows.
func sheetRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}
