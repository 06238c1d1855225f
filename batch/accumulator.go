// Package batch accumulates source records into batches, flushing when a
// size or staleness threshold is reached.
package batch

import (
	"time"
)

// Record is one loosely typed source record. Any field may be absent or hold
// a value of the wrong type.
type Record = map[string]interface{}

// Defaults used when a Config leaves a threshold unset.
const (
	DefaultSize         = 25000
	DefaultMaxStaleness = 30 * time.Second
)

// Config holds the flush thresholds of an Accumulator.
type Config struct {
	// Size is the number of records at which a batch is flushed.
	Size int

	// MaxStaleness is the time since the previous flush after which the
	// next accepted record (or Poll) flushes the buffer. Zero disables the
	// time trigger.
	MaxStaleness time.Duration
}

// Accumulator buffers records for a single (namespace, entity) pair. It is
// not safe for concurrent use; a pipeline owns exactly one.
type Accumulator struct {
	cfg       Config
	buf       []Record
	lastFlush time.Time

	// Now returns the current time. It must carry a monotonic clock
	// reading. Defaults to time.Now; replaced in tests.
	Now func() time.Time
}

// NewAccumulator returns an Accumulator with an empty buffer and its
// staleness timer started.
func NewAccumulator(cfg Config) *Accumulator {
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if cfg.MaxStaleness < 0 {
		cfg.MaxStaleness = 0
	}
	a := &Accumulator{
		cfg: cfg,
		Now: time.Now,
	}
	a.buf = make([]Record, 0, cfg.Size)
	a.lastFlush = a.Now()
	return a
}

// Config returns the effective configuration.
func (a *Accumulator) Config() Config {
	return a.cfg
}

// Len reports the number of buffered records.
func (a *Accumulator) Len() int {
	return len(a.buf)
}

// Accept buffers rec. If either threshold is met afterwards, the whole
// buffer, including rec, is returned and the buffer is reset; otherwise
// Accept returns nil.
func (a *Accumulator) Accept(rec Record) []Record {
	a.buf = append(a.buf, rec)
	if len(a.buf) >= a.cfg.Size || a.stale() {
		return a.flush()
	}
	return nil
}

// Poll performs the staleness check without a new record. It returns the
// buffer if it is non-empty and stale, and nil otherwise.
func (a *Accumulator) Poll() []Record {
	if len(a.buf) == 0 || !a.stale() {
		return nil
	}
	return a.flush()
}

// Drain returns whatever is buffered, regardless of thresholds, or nil when
// the buffer is empty. It is used on source exhaustion and when the source
// asks for a flush.
func (a *Accumulator) Drain() []Record {
	if len(a.buf) == 0 {
		return nil
	}
	return a.flush()
}

// Deadline returns the time at which the buffered records become stale. ok
// is false when nothing is buffered or the time trigger is disabled, in
// which case there is nothing to wait for.
func (a *Accumulator) Deadline() (deadline time.Time, ok bool) {
	if len(a.buf) == 0 || a.cfg.MaxStaleness == 0 {
		return time.Time{}, false
	}
	return a.lastFlush.Add(a.cfg.MaxStaleness), true
}

// Reset discards the buffer and restarts the staleness timer.
func (a *Accumulator) Reset() {
	a.buf = a.buf[:0]
	a.lastFlush = a.Now()
}

func (a *Accumulator) stale() bool {
	if a.cfg.MaxStaleness == 0 {
		return false
	}
	return a.Now().Sub(a.lastFlush) >= a.cfg.MaxStaleness
}

// flush hands the buffer to the caller and starts a new one.
func (a *Accumulator) flush() []Record {
	out := a.buf
	a.buf = make([]Record, 0, a.cfg.Size)
	a.lastFlush = a.Now()
	return out
}
