// Package dataset parses fetched CSV bytes into an in-memory tabular
// representation. Cell values are resolved once at parse time into a tagged
// variant (missing, integer, float, text) so downstream computation is a
// pure switch over kinds.
package dataset

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"

	rferrors "github.com/reportflow/reportflow/pkg/errors"
)

// Kind tags the resolved type of a single cell.
type Kind uint8

const (
	KindMissing Kind = iota
	KindInt
	KindFloat
	KindText
)

// Cell is one resolved value. Only the field matching Kind is meaningful.
type Cell struct {
	Kind  Kind
	Int   int64
	Float float64
	Text  string
}

// Dataset is a decoded tabular file: ordered unique column names and
// row-major cells. Constructed by Parse, consumed once by the metrics
// computation, then discarded.
type Dataset struct {
	Columns []string
	Rows    [][]Cell
}

const quote = byte('"')

// Parse decodes CSV bytes into a Dataset. The first line is the header.
// Empty input produces an empty dataset (zero columns, zero rows) rather
// than an error. Structural problems return CodeParseFailed: duplicate
// column names, or a data row whose field count differs from the header.
func Parse(data []byte) (*Dataset, error) {
	reader := bufio.NewReaderSize(bytes.NewReader(data), 64*1024)

	header, err := readLine(reader)
	if err == io.EOF && len(header) == 0 {
		return &Dataset{}, nil
	}
	if err != nil && err != io.EOF {
		return nil, rferrors.Wrap(err, rferrors.CodeParseFailed, "failed to read header")
	}

	columns := parseFields(header, ',')
	seen := make(map[string]struct{}, len(columns))
	names := make([]string, len(columns))
	for i, col := range columns {
		name := strings.TrimSpace(string(col))
		if _, dup := seen[name]; dup {
			return nil, rferrors.New(rferrors.CodeParseFailed, "duplicate column name").WithContext("column", name)
		}
		seen[name] = struct{}{}
		names[i] = name
	}

	ds := &Dataset{Columns: names}

	lineNum := 1
	for {
		line, err := readLine(reader)
		if err == io.EOF && len(line) == 0 {
			break
		}
		if err != nil && err != io.EOF {
			return nil, rferrors.Wrap(err, rferrors.CodeParseFailed, "failed to read row").WithContext("line", lineNum+1)
		}
		lineNum++

		// Skip a trailing blank line.
		if len(bytes.TrimSpace(line)) == 0 {
			if err == io.EOF {
				break
			}
			continue
		}

		fields := parseFields(line, ',')
		if len(fields) != len(names) {
			return nil, rferrors.New(rferrors.CodeParseFailed, "row field count does not match header").
				WithContext("line", lineNum).
				WithContext("expected", len(names)).
				WithContext("got", len(fields))
		}

		row := make([]Cell, len(fields))
		for i, f := range fields {
			row[i] = resolveCell(string(f))
		}
		ds.Rows = append(ds.Rows, row)

		if err == io.EOF {
			break
		}
	}

	return ds, nil
}

// resolveCell classifies a raw field into its tagged variant. The empty
// string is the designated missing marker.
func resolveCell(s string) Cell {
	if s == "" {
		return Cell{Kind: KindMissing}
	}

	trimmed := strings.TrimSpace(s)
	if trimmed != "" {
		if v, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return Cell{Kind: KindInt, Int: v}
		}
		if v, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return Cell{Kind: KindFloat, Float: v}
		}
	}
	return Cell{Kind: KindText, Text: s}
}

// readLine reads one logical CSV line, keeping quoted newlines intact.
func readLine(reader *bufio.Reader) ([]byte, error) {
	var line []byte
	inQuote := false

	for {
		part, err := reader.ReadBytes('\n')
		if len(part) > 0 {
			line = append(line, part...)

			for _, b := range part {
				if b == quote {
					inQuote = !inQuote
				}
			}

			if !inQuote && err == nil {
				return bytes.TrimRight(line, "\r\n"), nil
			}
		}

		if err != nil {
			if err == io.EOF && len(line) > 0 {
				return bytes.TrimRight(line, "\r\n"), io.EOF
			}
			return line, err
		}
	}
}

// parseFields splits a logical line into fields, honoring quoting and
// doubled-quote escapes.
func parseFields(line []byte, delim byte) [][]byte {
	var fields [][]byte
	var field []byte
	inQuote := false

	for i := 0; i < len(line); i++ {
		b := line[i]

		if b == quote {
			if inQuote && i+1 < len(line) && line[i+1] == quote {
				field = append(field, quote)
				i++
			} else {
				inQuote = !inQuote
			}
		} else if b == delim && !inQuote {
			fields = append(fields, field)
			field = nil
		} else {
			field = append(field, b)
		}
	}

	fields = append(fields, field)
	return fields
}
