package reports

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// exportExcel writes one worksheet per sheet, headings on row 1.
func exportExcel(sheets []Sheet) (*excelize.File, error) {
	f := excelize.NewFile()
	for i, sh := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sh.Name); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(sh.Name); err != nil {
			return nil, err
		}

		// Add headers
		for col, h := range sh.Headings {
			cell, err := excelize.CoordinatesToCellName(col+1, 1)
			if err != nil {
				return nil, err
			}
			f.SetCellValue(sh.Name, cell, h)
		}

		// Add data
		for rowNo, row := range sh.Rows {
			for col, value := range row {
				cell, err := excelize.CoordinatesToCellName(col+1, rowNo+2)
				if err != nil {
					return nil, err
				}
				if err := f.SetCellValue(sh.Name, cell, value); err != nil {
					return nil, fmt.Errorf("sheet %s cell %s: %w", sh.Name, cell, err)
				}
			}
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

func writeExcel(buf *bytes.Buffer, sheets []Sheet) error {
	f, err := exportExcel(sheets)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(buf)
}
