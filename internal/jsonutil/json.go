// internal/jsonutil/json.go
package jsonutil

import (
	"encoding/json"
	"errors"
	"io"
)

// EncodePretty writes v as indented JSON to w.
func EncodePretty(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// DecodeNumbers reads one JSON value from r, keeping numbers as
// json.Number so integers survive untouched. Trailing data is an error.
func DecodeNumbers(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}
