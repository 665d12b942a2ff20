package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/itchyny/gojq"
)

// jsonWriter writes one JSON document per line, optionally through a jq
// filter. Filtered string results are printed raw.
type jsonWriter struct {
	out  io.Writer
	code *gojq.Code
}

func newJSONWriter(out io.Writer, filter string) (*jsonWriter, error) {
	w := &jsonWriter{out: out}
	if filter == "" {
		return w, nil
	}
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("jq: filter parse error: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("jq: compile error: %w", err)
	}
	w.code = code
	return w, nil
}

func (w *jsonWriter) Write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if w.code == nil {
		_, err = fmt.Fprintln(w.out, string(data))
		return err
	}

	// gojq works on plain decoded JSON values.
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	iter := w.code.Run(doc)
	for {
		v, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, ok := v.(error); ok {
			return fmt.Errorf("jq: execution error: %w", err)
		}
		switch val := v.(type) {
		case string:
			fmt.Fprintln(w.out, val)
		case nil:
		default:
			out, err := json.Marshal(val)
			if err != nil {
				return fmt.Errorf("jq: marshal error: %w", err)
			}
			fmt.Fprintln(w.out, string(out))
		}
	}
}
