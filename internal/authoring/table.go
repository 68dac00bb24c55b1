package authoring

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Table is a relation table read from CSV.
//
// The first non-empty row is the header. Each non-empty header cell names an
// attribute that spans every following empty header cell, so
//
//	KEY, CONDITION,,,,,, PRIORITY
//
// gives CONDITION the six columns [1, 7). The last attribute spans to the
// widest row. Cells are trimmed of surrounding whitespace.
type Table struct {
	File string

	attrs map[string]span
	rows  [][]string
	lines []int
}

type span struct {
	begin, end int
}

// ReadTable parses a CSV relation table. file is used in error positions.
func ReadTable(r io.Reader, file string) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	t := &Table{File: file, attrs: make(map[string]span)}
	var header []string
	width := 0
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &LoadError{Code: ErrCodeInvalidTable, Message: pe.Err.Error(), File: file, Row: pe.Line, Column: pe.Column}
			}
			return nil, &LoadError{Code: ErrCodeInvalidTable, Message: err.Error(), File: file}
		}
		line, _ := cr.FieldPos(0)
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		if blank(record) {
			continue
		}
		width = max(width, len(record))
		if header == nil {
			header = record
			if header[0] == "" {
				return nil, &LoadError{Code: ErrCodeInvalidTable, Message: "header must start with an attribute", File: file, Row: line, Column: 1}
			}
			continue
		}
		t.rows = append(t.rows, record)
		t.lines = append(t.lines, line)
	}
	if header == nil {
		return nil, &LoadError{Code: ErrCodeInvalidTable, Message: "table has no header row", File: file}
	}

	name, begin := "", 0
	for i, cell := range header {
		if cell == "" {
			continue
		}
		if name != "" {
			t.attrs[name] = span{begin, i}
		}
		name, begin = strings.ToUpper(cell), i
		if _, dup := t.attrs[name]; dup {
			return nil, &LoadError{Code: ErrCodeInvalidTable, Message: fmt.Sprintf("duplicate attribute %s", name), File: file, Row: 1, Column: i + 1}
		}
	}
	t.attrs[name] = span{begin, width}
	return t, nil
}

func blank(record []string) bool {
	for _, cell := range record {
		if cell != "" {
			return false
		}
	}
	return true
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.rows) }

// Has reports whether the header declares attr.
func (t *Table) Has(attr string) bool {
	_, ok := t.attrs[strings.ToUpper(attr)]
	return ok
}

// Cells returns the cells of row under attr. Missing trailing cells are
// returned as empty strings.
func (t *Table) Cells(row int, attr string) []string {
	s, ok := t.attrs[strings.ToUpper(attr)]
	if !ok {
		return nil
	}
	out := make([]string, s.end-s.begin)
	copy(out, t.rows[row][min(s.begin, len(t.rows[row])):min(s.end, len(t.rows[row]))])
	return out
}

// Cell returns the first cell of row under attr.
func (t *Table) Cell(row int, attr string) string {
	cells := t.Cells(row, attr)
	if len(cells) == 0 {
		return ""
	}
	return cells[0]
}

// errorAt builds a LoadError positioned at attr's first column in row.
// offset selects a later column inside the attribute's span.
func (t *Table) errorAt(code string, row int, attr string, offset int, format string, args ...any) *LoadError {
	col := 0
	if s, ok := t.attrs[strings.ToUpper(attr)]; ok {
		col = s.begin + offset + 1
	}
	return &LoadError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		File:    t.File,
		Row:     t.lines[row],
		Column:  col,
	}
}
