package catalog

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// XLSXSource streams catalog items from the first sheet of an Excel
// workbook. Curated photo subsets tend to arrive as spreadsheets; the
// column layout is the same as the CSV export.
type XLSXSource struct {
	file  *excelize.File
	rows  *excelize.Rows
	index columnIndex
}

func NewXLSXSource(path string) (*XLSXSource, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}

	sheet := f.GetSheetName(0)
	if sheet == "" {
		f.Close()
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to iterate sheet %q: %w", sheet, err)
	}

	if !rows.Next() {
		rows.Close()
		f.Close()
		return nil, fmt.Errorf("workbook sheet %q is empty", sheet)
	}
	header, err := rows.Columns()
	if err != nil {
		rows.Close()
		f.Close()
		return nil, fmt.Errorf("failed to read workbook header: %w", err)
	}
	index, err := indexHeader(header)
	if err != nil {
		rows.Close()
		f.Close()
		return nil, err
	}

	return &XLSXSource{file: f, rows: rows, index: index}, nil
}

func (s *XLSXSource) Next() (Item, error) {
	for s.rows.Next() {
		row, err := s.rows.Columns()
		if err != nil {
			return Item{}, fmt.Errorf("failed to read workbook row: %w", err)
		}
		it, err := itemFromRow(s.index, row)
		if err != nil {
			continue
		}
		return it, nil
	}
	if err := s.rows.Error(); err != nil {
		return Item{}, fmt.Errorf("workbook iteration failed: %w", err)
	}
	return Item{}, io.EOF
}

func (s *XLSXSource) Close() error {
	s.rows.Close()
	return s.file.Close()
}
