// Package kafka reads records from JSON-encoded Kafka messages. Offsets are
// committed only when the pipeline calls Commit, after the records are
// durable.
package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/featurebasedb/lakeingest/batch"
	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/logger"
	"github.com/featurebasedb/lakeingest/source"
	segmentio "github.com/segmentio/kafka-go"
)

// Ensure type implements interface.
var (
	_ source.Source    = (*Source)(nil)
	_ source.Committer = (*Source)(nil)
)

// Reader is the part of a segmentio reader the Source uses.
type Reader interface {
	FetchMessage(ctx context.Context) (segmentio.Message, error)
	CommitMessages(ctx context.Context, msgs ...segmentio.Message) error
	io.Closer
}

// RetryReader retries fetches that fail with a temporary error or during a
// group rebalance.
type RetryReader struct {
	*segmentio.Reader
}

func (r RetryReader) FetchMessage(ctx context.Context) (segmentio.Message, error) {
	for {
		msg, err := r.Reader.FetchMessage(ctx)
		if err == nil {
			return msg, nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return segmentio.Message{}, cerr
		}
		if err == segmentio.RebalanceInProgress {
			continue
		}
		if kerr, ok := err.(segmentio.Error); ok && kerr.Temporary() {
			continue
		}
		return segmentio.Message{}, err
	}
}

// Source is not threadsafe. Run one per pipeline.
type Source struct {
	Hosts   []string
	Topic   string
	Group   string
	Log     logger.Logger
	SkipOld bool

	// Timeout is how long a fetch waits before returning source.ErrFlush.
	// Zero waits indefinitely.
	Timeout time.Duration

	reader Reader
	spool  []segmentio.Message
}

// NewSource returns a Source with local defaults. Call Open before use.
func NewSource() *Source {
	return &Source{
		Hosts: []string{"localhost:9092"},
		Group: "lakeingest",
		Log:   logger.NopLogger,
	}
}

// NewSourceWithReader returns a Source reading from r. It does not need to
// be opened.
func NewSourceWithReader(r Reader, log logger.Logger) *Source {
	s := NewSource()
	s.reader = r
	if log != nil {
		s.Log = log
	}
	return s
}

// Open connects the consumer group reader.
func (s *Source) Open() error {
	if s.Topic == "" {
		return errors.New(errors.ErrUncoded, "kafka source needs a topic")
	}
	config := segmentio.ReaderConfig{
		Brokers:     s.Hosts,
		GroupID:     s.Group,
		Topic:       s.Topic,
		Logger:      segmentio.LoggerFunc(s.Log.Debugf),
		ErrorLogger: segmentio.LoggerFunc(s.Log.Errorf),
	}
	if s.SkipOld {
		config.StartOffset = segmentio.LastOffset
	}
	if err := config.Validate(); err != nil {
		return errors.Wrap(err, "validating kafka reader config")
	}
	s.reader = RetryReader{segmentio.NewReader(config)}
	return nil
}

// Record returns the value of the next message.
func (s *Source) Record(ctx context.Context) (batch.Record, error) {
	msg, err := s.fetch(ctx)
	switch {
	case err == nil:
	case err == io.EOF:
		return nil, io.EOF
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case err == context.DeadlineExceeded:
		return nil, source.NewErrFlush()
	default:
		return nil, errors.Wrap(err, "failed to fetch record from Kafka")
	}

	s.spool = append(s.spool, msg)

	rec, err := decodeMessage(msg.Value)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding message at %s:%d:%d", msg.Topic, msg.Partition, msg.Offset)
	}
	return rec, nil
}

func (s *Source) fetch(ctx context.Context) (segmentio.Message, error) {
	if s.Timeout != 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	return s.reader.FetchMessage(ctx)
}

func decodeMessage(buf []byte) (batch.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber()
	rec := batch.Record{}
	if err := dec.Decode(&rec); err != nil {
		if serr, ok := err.(*json.SyntaxError); ok {
			return nil, errors.Wrapf(err, "unmarshaling kafka message at character offset %v: %s", serr.Offset, string(buf))
		}
		return nil, errors.Wrapf(err, "unmarshaling kafka message: %s", string(buf))
	}
	return rec, nil
}

// Commit commits the offsets of every message fetched so far.
func (s *Source) Commit(ctx context.Context) error {
	if len(s.spool) == 0 {
		return nil
	}
	if err := s.reader.CommitMessages(ctx, s.spool...); err != nil {
		return errors.Wrap(err, "failed to commit messages")
	}
	s.Log.Debugf("committed %d kafka messages", len(s.spool))
	s.spool = s.spool[:0]
	return nil
}

// Close closes the underlying kafka consumer.
func (s *Source) Close() error {
	if s.reader == nil {
		return nil
	}
	err := s.reader.Close()
	return errors.Wrap(err, "closing kafka consumer")
}
