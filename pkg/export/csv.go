package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// Dataset defines tabular content for schedule artifacts.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// Append adds one row keyed by header name.
func (d *Dataset) Append(row map[string]string) {
	d.Rows = append(d.Rows, row)
}

// CSVExporter renders Dataset records into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the dataset. A dataset with no rows
// still renders its header line, which is how degraded iterations emit
// empty-but-well-formed artifacts.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range data.Rows {
		record := make([]string, len(data.Headers))
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseCSV reads a header-keyed dataset from r. Short rows are padded with
// empty strings so sparse input files load without error.
func ParseCSV(r io.Reader) (Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return Dataset{}, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return Dataset{}, fmt.Errorf("csv has no header row")
	}

	data := Dataset{Headers: records[0]}
	for _, record := range records[1:] {
		row := make(map[string]string, len(data.Headers))
		for i, header := range data.Headers {
			if i < len(record) {
				row[header] = record[i]
			} else {
				row[header] = ""
			}
		}
		data.Rows = append(data.Rows, row)
	}
	return data, nil
}
