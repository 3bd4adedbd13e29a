package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// SheetSpec — лист: заголовок и строки значений (числа остаются числами).
type SheetSpec struct {
	Title  string
	Header []string
	Rows   [][]any
}

// NewWorkbook — книга из листов по порядку; стандартный Sheet1 переименовывается в первый.
func NewWorkbook(sheets []SheetSpec) (*excelize.File, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook without sheets")
	}
	f := excelize.NewFile()
	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.Title); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.Title); err != nil {
			return nil, fmt.Errorf("new sheet %q: %w", s.Title, err)
		}

		for c, h := range s.Header {
			if err := f.SetCellStr(s.Title, cell(c+1, 1), h); err != nil {
				return nil, fmt.Errorf("header %s: %w", cell(c+1, 1), err)
			}
		}
		for r, row := range s.Rows {
			for c, v := range row {
				if err := f.SetCellValue(s.Title, cell(c+1, r+2), v); err != nil {
					return nil, fmt.Errorf("set cell %s: %w", cell(c+1, r+2), err)
				}
			}
		}
		if err := ApplyDefaultFormatting(f, s.Title); err != nil {
			return nil, fmt.Errorf("format %q: %w", s.Title, err)
		}
	}
	return f, nil
}

// Write — xlsx в поток (HTTP-ответ или файл CLI).
func Write(f *excelize.File, w io.Writer) error {
	defer func() { _ = f.Close() }()
	_, err := f.WriteTo(w)
	return err
}
