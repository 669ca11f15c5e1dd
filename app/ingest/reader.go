package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/maxsanz/keyword-universe/app/keyword"
)

// Reader turns a keyword export file into header-keyed raw rows. SEO tools
// disagree on delimiters (Ahrefs exports comma-separated, Semrush exports
// semicolon-separated), so the delimiter is sniffed from the header line.
type Reader struct{}

func NewReader() *Reader {
	return &Reader{}
}

// Run reads the full export. The header row keys every subsequent row; short
// rows leave their trailing columns empty rather than failing the file.
func (r *Reader) Run(src io.Reader, filename string) ([]keyword.RawRow, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}

	text := strings.TrimPrefix(string(data), "\ufeff")
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%s is empty", filename)
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = sniffDelimiter(text)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%s has no data rows", filename)
	}

	header := records[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	rows := make([]keyword.RawRow, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(keyword.RawRow, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			if i < len(record) {
				row[name] = record[i]
			} else {
				row[name] = ""
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// sniffDelimiter picks the delimiter that splits the header line into more
// fields. Comma wins ties, matching the more common export format.
func sniffDelimiter(text string) rune {
	headerLine := text
	if idx := strings.IndexAny(text, "\r\n"); idx != -1 {
		headerLine = text[:idx]
	}
	if strings.Count(headerLine, ";") > strings.Count(headerLine, ",") {
		return ';'
	}
	return ','
}
