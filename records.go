package prefixgz

import (
	"io"

	"github.com/meigma/prefixgz/internal/file"
	"github.com/meigma/prefixgz/internal/record"
)

// InputFormat identifies the container an input archive arrived in.
type InputFormat = file.Format

// Input formats recognized by OpenInput.
const (
	InputTar  = file.FormatTar
	InputGzip = file.FormatGzip
	InputZstd = file.FormatZstd
	InputLZ4  = file.FormatLZ4
)

// OpenOption configures OpenInput.
type OpenOption = file.OpenOption

// WithMaxDecoderMemory caps the memory a zstd decoder may allocate.
var WithMaxDecoderMemory = file.WithMaxDecoderMemory

// OpenInput returns a reader over the uncompressed tar held in r, which may
// be a plain tar or a gzip, zstd or LZ4 compressed one.
func OpenInput(r io.Reader, opts ...OpenOption) (io.ReadCloser, InputFormat, error) {
	return file.OpenInput(r, opts...)
}

// Record is the published key-value form of a checkpoint.
type Record = record.Record

// RecordFormat selects a record encoding.
type RecordFormat = record.Format

// Record formats.
const (
	RecordJSON = record.FormatJSON
	RecordYAML = record.FormatYAML
	RecordText = record.FormatText
)

// ParseRecordFormat returns the record format with the given name.
var ParseRecordFormat = record.ParseFormat

// RecordEncoder writes checkpoints as records. Its Encode method can be
// passed directly to Precompute as the emit callback.
type RecordEncoder = record.Encoder

// TextOption configures the text record encoder.
type TextOption = record.TextOption

// WithColor enables ANSI colors in text records.
var WithColor = record.WithColor

// NewRecordEncoder returns an encoder writing records in format to w.
func NewRecordEncoder(w io.Writer, format RecordFormat, opts ...TextOption) (RecordEncoder, error) {
	return record.NewEncoder(w, format, opts...)
}

// NewJSONEncoder returns an encoder writing one JSON record per line.
func NewJSONEncoder(w io.Writer) RecordEncoder {
	return record.NewJSONEncoder(w)
}

// DecodeRecords reads JSON or YAML records from r. Decoded checkpoints do
// not carry Entries or RawSize.
func DecodeRecords(r io.Reader, format RecordFormat) ([]Checkpoint, error) {
	return record.Decode(r, format)
}
