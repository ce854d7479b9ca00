// Package record converts checkpoints to and from their published records.
//
// A record is the key-value entry a serving layer looks up by index state:
//
//	{"key": "2024-01-02T03:04:05Z", "value": "<base64 trailer>", "base64": true,
//	 "metadata": {"prefix_size": 123, "sha256": "<hex>"}}
package record

import (
	"encoding/base64"
	"fmt"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/prefixgz/internal/indextype"
)

// Record is the wire form of one checkpoint.
type Record struct {
	Key      string   `json:"key" yaml:"key"`
	Value    string   `json:"value" yaml:"value"`
	Base64   bool     `json:"base64" yaml:"base64"`
	Metadata Metadata `json:"metadata" yaml:"metadata"`
}

// Metadata carries what a server needs besides the trailer.
type Metadata struct {
	PrefixSize uint64 `json:"prefix_size" yaml:"prefix_size"`
	SHA256     string `json:"sha256" yaml:"sha256"`
}

// FromCheckpoint returns the record for c.
func FromCheckpoint(c *indextype.Checkpoint) Record {
	return Record{
		Key:    c.Key(),
		Value:  base64.StdEncoding.EncodeToString(c.Trailer),
		Base64: true,
		Metadata: Metadata{
			PrefixSize: c.PrefixSize,
			SHA256:     c.SHA256.Encoded(),
		},
	}
}

// Checkpoint converts r back into a checkpoint. Entries and RawSize are not
// part of the record and stay zero.
func (r *Record) Checkpoint() (indextype.Checkpoint, error) {
	state, err := indextype.ParseKey(r.Key)
	if err != nil {
		return indextype.Checkpoint{}, err
	}

	trailer := []byte(r.Value)
	if r.Base64 {
		trailer, err = base64.StdEncoding.DecodeString(r.Value)
		if err != nil {
			return indextype.Checkpoint{}, fmt.Errorf("record %s: decode trailer: %w", r.Key, err)
		}
	}

	d := digest.NewDigestFromEncoded(digest.SHA256, r.Metadata.SHA256)
	if err := d.Validate(); err != nil {
		return indextype.Checkpoint{}, fmt.Errorf("record %s: sha256: %w", r.Key, err)
	}

	return indextype.Checkpoint{
		IndexState: state,
		PrefixSize: r.Metadata.PrefixSize,
		Trailer:    trailer,
		SHA256:     d,
	}, nil
}
