// Package source defines where a pipeline's records come from.
package source

import (
	"context"
	"io"

	"github.com/featurebasedb/lakeingest/batch"
	"github.com/featurebasedb/lakeingest/errors"
)

const (
	// ErrFlush is returned by a Source to ask the pipeline to check its
	// flush triggers when no record arrived in time.
	ErrFlush errors.Code = "FlushRequested"
)

func NewErrFlush() error {
	return errors.New(ErrFlush, "flush requested")
}

// Source is a stream of records for a single entity. Record returns io.EOF
// when the stream is exhausted. It must return promptly with ctx.Err() once
// ctx is done. A Source is used by one pipeline at a time.
type Source interface {
	Record(ctx context.Context) (batch.Record, error)
	Close() error
}

// Committer is implemented by sources that can acknowledge records. The
// pipeline calls Commit after every record returned so far is committed to
// the table or durably journaled.
type Committer interface {
	Commit(ctx context.Context) error
}

// Func adapts a function to Source.
type Func func(ctx context.Context) (batch.Record, error)

func (f Func) Record(ctx context.Context) (batch.Record, error) { return f(ctx) }

func (f Func) Close() error { return nil }

// SliceSource returns records from a slice, then io.EOF.
type SliceSource struct {
	recs []batch.Record
	next int

	// OnRecord, if set, is called with the index of each record before it
	// is returned.
	OnRecord func(i int)

	Commits int
	Closed  bool
}

func NewSliceSource(recs ...batch.Record) *SliceSource {
	return &SliceSource{recs: recs}
}

func (s *SliceSource) Record(ctx context.Context) (batch.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next == len(s.recs) {
		return nil, io.EOF
	}
	if s.OnRecord != nil {
		s.OnRecord(s.next)
	}
	rec := s.recs[s.next]
	s.next++
	return rec, nil
}

// Commit counts calls.
func (s *SliceSource) Commit(ctx context.Context) error {
	s.Commits++
	return nil
}

func (s *SliceSource) Close() error {
	s.Closed = true
	return nil
}
