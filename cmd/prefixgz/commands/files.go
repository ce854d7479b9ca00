package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/meigma/prefixgz"
)

const stdio = "-"

// openReader opens path for reading; "-" reads stdin.
func (e *env) openReader(path string) (io.Reader, func() error, error) {
	if path == stdio {
		return e.stdin, func() error { return nil }, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

// openWriter creates path for buffered writing; "-" writes stdout. The
// returned func flushes and closes.
func (e *env) openWriter(path string) (io.Writer, func() error, error) {
	if path == stdio {
		bw := bufio.NewWriter(e.stdout)
		return bw, bw.Flush, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	bw := bufio.NewWriterSize(f, 1<<20)
	return bw, func() error {
		if err := bw.Flush(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}, nil
}

// recordFormat picks the record format from the flag, the file extension
// or the config, in that order.
func (e *env) recordFormat(flag, path string) (prefixgz.RecordFormat, error) {
	if flag != "" {
		return prefixgz.ParseRecordFormat(flag)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return prefixgz.RecordYAML, nil
	case ".json", ".jsonl":
		return prefixgz.RecordJSON, nil
	}
	return prefixgz.ParseRecordFormat(e.cfg.Format)
}

// readRecords decodes the checkpoints stored at path.
func (e *env) readRecords(path, format string) ([]prefixgz.Checkpoint, error) {
	f, err := e.recordFormat(format, path)
	if err != nil {
		return nil, err
	}
	r, closeFn, err := e.openReader(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	cps, err := prefixgz.DecodeRecords(bufio.NewReader(r), f)
	if err != nil {
		return nil, fmt.Errorf("read records %s: %w", path, err)
	}
	e.log.Debug("records loaded", "path", path, "count", len(cps))
	return cps, nil
}

// readCheckpoints decodes the records at path into a lookup set.
func (e *env) readCheckpoints(path, format string) (*prefixgz.Checkpoints, error) {
	cps, err := e.readRecords(path, format)
	if err != nil {
		return nil, err
	}
	return prefixgz.NewCheckpoints(cps)
}
