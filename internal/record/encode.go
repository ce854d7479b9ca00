package record

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/meigma/prefixgz/internal/indextype"
)

// Format selects a record encoding.
type Format uint8

const (
	FormatJSON Format = iota
	FormatYAML
	FormatText
)

// String returns the name of the format.
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	case FormatText:
		return "text"
	default:
		return "unknown"
	}
}

// ParseFormat returns the format with the given name.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "json", "jsonl", "":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "text":
		return FormatText, nil
	default:
		return 0, fmt.Errorf("unknown record format %q", name)
	}
}

// Encoder writes checkpoints as records.
type Encoder interface {
	Encode(c indextype.Checkpoint) error
	Close() error
}

// NewEncoder returns an encoder for format writing to w.
func NewEncoder(w io.Writer, format Format, opts ...TextOption) (Encoder, error) {
	switch format {
	case FormatJSON:
		return NewJSONEncoder(w), nil
	case FormatYAML:
		return NewYAMLEncoder(w), nil
	case FormatText:
		return NewTextEncoder(w, opts...), nil
	default:
		return nil, fmt.Errorf("unknown record format %d", format)
	}
}

// JSONEncoder writes one JSON object per line.
type JSONEncoder struct {
	enc *json.Encoder
}

// NewJSONEncoder returns a JSONEncoder writing to w.
func NewJSONEncoder(w io.Writer) *JSONEncoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONEncoder{enc: enc}
}

// Encode writes the record for c followed by a newline.
func (e *JSONEncoder) Encode(c indextype.Checkpoint) error {
	return e.enc.Encode(FromCheckpoint(&c))
}

// Close is a no-op; JSON lines need no terminator.
func (e *JSONEncoder) Close() error { return nil }

// YAMLEncoder writes one YAML document per record.
type YAMLEncoder struct {
	enc *yaml.Encoder
}

// NewYAMLEncoder returns a YAMLEncoder writing to w.
func NewYAMLEncoder(w io.Writer) *YAMLEncoder {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return &YAMLEncoder{enc: enc}
}

// Encode writes the record for c as a YAML document.
func (e *YAMLEncoder) Encode(c indextype.Checkpoint) error {
	return e.enc.Encode(FromCheckpoint(&c))
}

// Close flushes the encoder.
func (e *YAMLEncoder) Close() error {
	return e.enc.Close()
}

type textConfig struct {
	color bool
}

// TextOption configures a TextEncoder.
type TextOption func(*textConfig)

// WithColor enables ANSI colors in text output.
func WithColor(enabled bool) TextOption {
	return func(c *textConfig) {
		c.color = enabled
	}
}

// TextEncoder writes one human-readable line per checkpoint.
type TextEncoder struct {
	w   io.Writer
	key *color.Color
	dim *color.Color
}

// NewTextEncoder returns a TextEncoder writing to w.
func NewTextEncoder(w io.Writer, opts ...TextOption) *TextEncoder {
	var cfg textConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	key := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.Faint)
	if cfg.color {
		key.EnableColor()
		dim.EnableColor()
	} else {
		key.DisableColor()
		dim.DisableColor()
	}
	return &TextEncoder{w: w, key: key, dim: dim}
}

// Encode writes a summary line for c.
func (e *TextEncoder) Encode(c indextype.Checkpoint) error {
	_, err := fmt.Fprintf(e.w, "%s  state=%d  entries=%d  prefix=%s  trailer=%s  %s\n",
		e.key.Sprint(c.Key()),
		c.IndexState,
		c.Entries,
		humanize.IBytes(c.PrefixSize),
		humanize.IBytes(uint64(len(c.Trailer))),
		e.dim.Sprint(c.SHA256.String()),
	)
	return err
}

// Close is a no-op.
func (e *TextEncoder) Close() error { return nil }
