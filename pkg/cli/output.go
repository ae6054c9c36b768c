package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatText is an aligned plain text table (default).
	FormatText OutputFormat = "text"
	// FormatJSON is JSON output.
	FormatJSON OutputFormat = "json"
	// FormatCSV is CSV output.
	FormatCSV OutputFormat = "csv"
)

// Table is the result of a command. Text and CSV render Headers and Rows;
// JSON renders Data, or the rows keyed by header when Data is nil.
type Table struct {
	Headers []string
	Rows    [][]string
	Data    any
}

// Formatter writes command output.
type Formatter interface {
	FormatTo(w io.Writer, t *Table) error
}

// TextFormatter writes a tab-aligned table.
type TextFormatter struct{}

// FormatTo writes t to w as aligned columns.
func (f *TextFormatter) FormatTo(w io.Writer, t *Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if len(t.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// JSONFormatter formats output as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatTo writes t to w in JSON format.
func (f *JSONFormatter) FormatTo(w io.Writer, t *Table) error {
	encoder := json.NewEncoder(w)
	if f.Indent {
		encoder.SetIndent("", "  ")
	}
	if t.Data != nil {
		return encoder.Encode(t.Data)
	}

	records := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]string, len(t.Headers))
		for i, h := range t.Headers {
			if i < len(row) {
				rec[h] = row[i]
			}
		}
		records = append(records, rec)
	}
	return encoder.Encode(records)
}

// CSVFormatter formats output as CSV with a header line.
type CSVFormatter struct{}

// FormatTo writes t to w in CSV format.
func (f *CSVFormatter) FormatTo(w io.Writer, t *Table) error {
	csvWriter := csv.NewWriter(w)
	if len(t.Headers) > 0 {
		if err := csvWriter.Write(t.Headers); err != nil {
			return err
		}
	}
	if err := csvWriter.WriteAll(t.Rows); err != nil {
		return err
	}
	return csvWriter.Error()
}

// NewFormatter creates a formatter for the named format.
func NewFormatter(format string) (Formatter, error) {
	switch OutputFormat(strings.ToLower(format)) {
	case FormatText, "":
		return &TextFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{Indent: true}, nil
	case FormatCSV:
		return &CSVFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q (supported: text, json, csv)", format)
	}
}
