package trace

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	// ErrMalformedTrace is returned when a log cannot be parsed.
	ErrMalformedTrace = errors.New("trace: malformed trace")

	// ErrIO is returned when the trace directory or a blob cannot be read
	// or written.
	ErrIO = errors.New("trace: i/o error")
)

// Detect reports the format of the log in dir. A binary log wins when
// both files exist.
func Detect(dir string) (Format, error) {
	for _, f := range []Format{FormatBinary, FormatText} {
		if _, err := os.Stat(filepath.Join(dir, f.FileName())); err == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: no trace log in %s: %w", ErrIO, dir, os.ErrNotExist)
}

// Load reads the log in dir and returns its actions in recorded order.
func Load(dir string) ([]Action, error) {
	f, err := Detect(dir)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, f.FileName()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return Parse(data, f)
}

// Parse decodes a whole log. A trailing separator is accepted, and so is a
// log whose closing delimiter was never written.
func Parse(data []byte, f Format) ([]Action, error) {
	if f == FormatBinary {
		if len(data) == 0 || data[0] != cborOpen[0] {
			return nil, fmt.Errorf("%w: missing array header", ErrMalformedTrace)
		}
		actions, err := decodeList(cborCodec, data, actionDecoders, "action")
		if err != nil {
			// The break byte is missing when the capture was not closed.
			if retry, rerr := decodeList(cborCodec, append(bytes.Clone(data), cborClose...), actionDecoders, "action"); rerr == nil {
				return retry, nil
			}
		}
		return actions, err
	}

	body := bytes.TrimSpace(data)
	if !bytes.HasPrefix(body, []byte("[")) {
		return nil, fmt.Errorf("%w: missing opening bracket", ErrMalformedTrace)
	}
	body = bytes.TrimPrefix(body, []byte("["))
	body = bytes.TrimSuffix(body, []byte("]"))
	body = bytes.TrimSpace(body)
	body = bytes.TrimSuffix(body, []byte(","))

	list := make([]byte, 0, len(body)+2)
	list = append(list, '[')
	list = append(list, body...)
	list = append(list, ']')
	return decodeList(jsonCodec, list, actionDecoders, "action")
}

// ReadBlob reads a data file referenced by an action. Names must not leave
// the trace directory.
func ReadBlob(dir, name string) ([]byte, error) {
	if name == "" || filepath.Base(name) != name {
		return nil, fmt.Errorf("%w: bad blob name %q", ErrMalformedTrace, name)
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return data, nil
}
