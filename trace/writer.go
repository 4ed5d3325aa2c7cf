package trace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gogpu/gpuplay/internal/logging"
)

// Delimiters of the two log formats.
var (
	textOpen  = []byte("[\n")
	textSep   = []byte(",\n")
	textClose = []byte("]\n")

	cborOpen  = []byte{0x9f} // indefinite-length array
	cborClose = []byte{0xff} // break
)

type writerOptions struct {
	format Format
}

// Option configures a Writer.
type Option func(*writerOptions)

// WithFormat selects the log format. The default is FormatText.
func WithFormat(f Format) Option {
	return func(o *writerOptions) {
		o.format = f
	}
}

// Writer appends actions to a trace directory.
//
// Add and MakeBinary never fail from the caller's point of view: write
// and serialization errors are logged and the record is dropped, so a
// broken capture never breaks the traced program.
//
// Writer is safe for concurrent use.
type Writer struct {
	mu       sync.Mutex
	dir      string
	format   Format
	file     *os.File
	binaryID int
	written  int
	closed   bool
}

// New creates dir if needed, creates the log file inside it and writes
// the opening delimiter.
func New(dir string, opts ...Option) (*Writer, error) {
	o := writerOptions{format: FormatText}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	path := filepath.Join(dir, o.format.FileName())
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	open := textOpen
	if o.format == FormatBinary {
		open = cborOpen
	}
	if _, err := f.Write(open); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	logging.Logger().Info("trace: capture started", "path", path, "format", o.format)
	return &Writer{dir: dir, format: o.format, file: f}, nil
}

// Dir returns the trace directory.
func (w *Writer) Dir() string { return w.dir }

// Format returns the log format.
func (w *Writer) Format() Format { return w.format }

// Add serializes a and appends it to the log.
func (w *Writer) Add(a Action) {
	data, err := MarshalAction(a, w.format)
	if err != nil {
		logging.Logger().Warn("trace: dropping action", "action", a.Type(), "err", err)
		return
	}
	if w.format == FormatText {
		data = append(data, textSep...)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		logging.Logger().Warn("trace: action added after close", "action", a.Type())
		return
	}
	if _, err := w.file.Write(data); err != nil {
		logging.Logger().Warn("trace: write failed", "action", a.Type(), "err", err)
		return
	}
	w.written++
}

// Written returns the number of actions appended to the log so far.
// Dropped actions are not counted.
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// MakeBinary stores data next to the log as data<N>.<ext> and returns the
// file name. N starts at 1 and grows by one per call.
func (w *Writer) MakeBinary(ext string, data []byte) string {
	w.mu.Lock()
	w.binaryID++
	name := fmt.Sprintf("data%d.%s", w.binaryID, ext)
	w.mu.Unlock()

	if err := os.WriteFile(filepath.Join(w.dir, name), data, 0o644); err != nil {
		logging.Logger().Warn("trace: blob write failed", "name", name, "err", err)
	}
	return name
}

// Close writes the closing delimiter and closes the log. Calling Close
// more than once is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	closing := textClose
	if w.format == FormatBinary {
		closing = cborClose
	}
	_, werr := w.file.Write(closing)
	cerr := w.file.Close()
	logging.Logger().Info("trace: capture finished", "dir", w.dir, "actions", w.written, "blobs", w.binaryID)
	if werr != nil {
		return fmt.Errorf("%w: %v", ErrIO, werr)
	}
	if cerr != nil {
		return fmt.Errorf("%w: %v", ErrIO, cerr)
	}
	return nil
}
