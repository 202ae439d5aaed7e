package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// CSVSource streams catalog items from a CSV file with a header row.
type CSVSource struct {
	f      *os.File
	reader *csv.Reader
	index  columnIndex
}

func NewCSVSource(path string) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // rows with trailing blanks are common

	header, err := reader.Read()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read catalog header: %w", err)
	}
	index, err := indexHeader(header)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &CSVSource{f: f, reader: reader, index: index}, nil
}

func (s *CSVSource) Next() (Item, error) {
	for {
		row, err := s.reader.Read()
		if err == io.EOF {
			return Item{}, io.EOF
		}
		if err != nil {
			return Item{}, fmt.Errorf("failed to read catalog row: %w", err)
		}
		it, err := itemFromRow(s.index, row)
		if err != nil {
			// Malformed rows are dropped, not fatal
			continue
		}
		return it, nil
	}
}

func (s *CSVSource) Close() error {
	return s.f.Close()
}
