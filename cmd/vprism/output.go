package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	vperrors "github.com/wxxb789/vprism-core/internal/errors"
)

// row is one rendered output record, preserving column order via keys.
type row struct {
	keys   []string
	values map[string]any
}

func newRow() *row {
	return &row{values: make(map[string]any)}
}

func (r *row) set(key string, value any) *row {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
	return r
}

// renderRows writes rows as a column-aligned table or one JSON object per
// line, per spec §6 "Global flags".
func renderRows(flags *globalFlags, rows []*row) error {
	var w io.Writer = os.Stdout
	if flags.output != "" {
		f, err := os.Create(flags.output)
		if err != nil {
			return fmt.Errorf("open output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if strings.EqualFold(flags.format, "jsonl") {
		return renderJSONL(w, rows)
	}
	return renderTable(w, rows)
}

func renderJSONL(w io.Writer, rows []*row) error {
	for _, r := range rows {
		parts := make([]string, 0, len(r.keys))
		for _, k := range r.keys {
			kb, _ := json.Marshal(k)
			vb, err := json.Marshal(r.values[k])
			if err != nil {
				return err
			}
			parts = append(parts, string(kb)+":"+string(vb))
		}
		if _, err := fmt.Fprintf(w, "{%s}\n", strings.Join(parts, ",")); err != nil {
			return err
		}
	}
	return nil
}

func renderTable(w io.Writer, rows []*row) error {
	if len(rows) == 0 {
		return nil
	}
	keys := rows[0].keys
	widths := make([]int, len(keys))
	for i, k := range keys {
		widths[i] = len(k)
	}
	cells := make([][]string, len(rows))
	for ri, r := range rows {
		cells[ri] = make([]string, len(keys))
		for i, k := range keys {
			s := fmt.Sprintf("%v", r.values[k])
			cells[ri][i] = s
			if len(s) > widths[i] {
				widths[i] = len(s)
			}
		}
	}

	writeRow := func(values []string) {
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = fmt.Sprintf("%-*s", widths[i], v)
		}
		fmt.Fprintln(w, strings.Join(parts, "  "))
	}
	writeRow(keys)
	for _, c := range cells {
		writeRow(c)
	}
	return nil
}

// emitError prints a structured JSON object to stderr (spec §6 "On error")
// and returns the process exit code from spec.md §6/§7.
func emitError(err error) int {
	if de, ok := vperrors.As(err); ok {
		data, _ := json.Marshal(de.Payload())
		fmt.Fprintln(os.Stderr, string(data))
		return de.CLIExitCode()
	}
	data, _ := json.Marshal(map[string]any{"code": "SYSTEM", "message": err.Error()})
	fmt.Fprintln(os.Stderr, string(data))
	return 1
}
