// Package jsonl reads records from newline-delimited JSON, one object per
// line.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/featurebasedb/lakeingest/batch"
	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/logger"
	"github.com/featurebasedb/lakeingest/source"
)

// MaxLineSize is the longest line accepted.
const MaxLineSize = 4 << 20

// Ensure type implements interface.
var _ source.Source = (*Source)(nil)

type line struct {
	n    int
	data []byte
	err  error
}

// Source reads lines on a background goroutine so Record can give up on a
// slow reader when its context is done or Timeout passes.
type Source struct {
	r      io.Reader
	closer io.Closer
	lines  chan line
	done   chan struct{}

	// Timeout is how long Record waits for a line before returning
	// source.ErrFlush. Zero waits indefinitely.
	Timeout time.Duration

	Log logger.Logger
}

// NewSource returns a Source reading from r. The scanner goroutine starts on
// the first call to Record.
func NewSource(r io.Reader) *Source {
	return &Source{
		r:   r,
		Log: logger.NopLogger,
	}
}

// Open returns a Source reading the file at path, or stdin for "-".
func Open(path string) (*Source, error) {
	if path == "-" || path == "" {
		return NewSource(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	s := NewSource(f)
	s.closer = f
	return s, nil
}

func (s *Source) start() {
	s.lines = make(chan line)
	s.done = make(chan struct{})
	go func() {
		defer close(s.lines)
		sc := bufio.NewScanner(s.r)
		sc.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
		n := 0
		for sc.Scan() {
			n++
			b := bytes.TrimSpace(sc.Bytes())
			if len(b) == 0 {
				continue
			}
			select {
			case s.lines <- line{n: n, data: append([]byte(nil), b...)}:
			case <-s.done:
				return
			}
		}
		if err := sc.Err(); err != nil {
			select {
			case s.lines <- line{n: n + 1, err: err}:
			case <-s.done:
			}
		}
	}()
}

// Record returns the next object. Numbers are decoded as json.Number.
func (s *Source) Record(ctx context.Context) (batch.Record, error) {
	if s.lines == nil {
		s.start()
	}

	var timeout <-chan time.Time
	if s.Timeout > 0 {
		t := time.NewTimer(s.Timeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, source.NewErrFlush()
	case l, ok := <-s.lines:
		if !ok {
			return nil, io.EOF
		}
		if l.err != nil {
			return nil, errors.Wrapf(l.err, "reading line %d", l.n)
		}
		return decode(l)
	}
}

func decode(l line) (batch.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(l.data))
	dec.UseNumber()
	rec := batch.Record{}
	if err := dec.Decode(&rec); err != nil {
		if serr, ok := err.(*json.SyntaxError); ok {
			return nil, errors.Wrapf(err, "unmarshaling line %d at character offset %v", l.n, serr.Offset)
		}
		return nil, errors.Wrapf(err, "unmarshaling line %d", l.n)
	}
	return rec, nil
}

// Close stops the scanner goroutine and closes the file opened by Open.
func (s *Source) Close() error {
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	if s.closer != nil {
		return errors.Wrap(s.closer.Close(), "closing input")
	}
	return nil
}
