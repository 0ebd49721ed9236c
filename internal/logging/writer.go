package logging

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"time"
)

// maxPartialLine bounds how much of an unterminated line is held back.
const maxPartialLine = 1024 * 1024

// LineWriter prefixes every complete line written through it with a sequence
// number and a timestamp. Partial lines are held until their newline arrives
// or Close is called.
type LineWriter struct {
	target io.Writer
	now    func() time.Time

	mu      sync.Mutex
	seq     uint64
	partial []byte
}

func NewLineWriter(target io.Writer) *LineWriter {
	return &LineWriter{
		target: target,
		now:    time.Now,
	}
}

// Write reports len(p) on success, not the number of bytes that reached the
// target, which includes prefixes.
func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial = append(w.partial, p...)
	for {
		idx := bytes.IndexByte(w.partial, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSuffix(w.partial[:idx], []byte("\r"))
		if err := w.writeLine(line); err != nil {
			return 0, err
		}
		w.partial = w.partial[idx+1:]
	}

	if len(w.partial) > maxPartialLine {
		if err := w.writeLine(w.partial); err != nil {
			return 0, err
		}
		w.partial = w.partial[:0]
	}
	// don't let the backing array grow without bound
	if len(w.partial) == 0 {
		w.partial = nil
	}
	return len(p), nil
}

// Close flushes a trailing partial line.
func (w *LineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.partial) == 0 {
		return nil
	}
	err := w.writeLine(w.partial)
	w.partial = nil
	return err
}

func (w *LineWriter) writeLine(line []byte) error {
	w.seq++
	var buf bytes.Buffer
	buf.WriteString(slog.Uint64("line", w.seq).String())
	buf.WriteByte(' ')
	buf.WriteString(slog.String("time", w.now().Format(time.RFC3339)).String())
	buf.WriteByte(' ')
	buf.Write(line)
	buf.WriteByte('\n')
	_, err := w.target.Write(buf.Bytes())
	return err
}
