package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/meigma/prefixgz/internal/indextype"
)

// Decode reads records in format from r and returns their checkpoints in
// stream order. Text output cannot be decoded.
func Decode(r io.Reader, format Format) ([]indextype.Checkpoint, error) {
	var next func(*Record) error
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		next = func(rec *Record) error { return dec.Decode(rec) }
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		next = func(rec *Record) error { return dec.Decode(rec) }
	default:
		return nil, fmt.Errorf("cannot decode %s records", format)
	}

	var out []indextype.Checkpoint
	for {
		var rec Record
		err := next(&rec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(out)+1, err)
		}
		c, err := rec.Checkpoint()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
}
