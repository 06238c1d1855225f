// Package inmem is an in-memory journal.Journal. It does not survive a
// restart and is meant for tests and one-shot runs.
package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/featurebasedb/lakeingest/journal"
	"github.com/google/uuid"
)

// Ensure type implements interface.
var _ journal.Journal = (*Journal)(nil)

type Journal struct {
	mu      sync.Mutex
	entries map[string]*journal.Entry
	spills  map[string]*journal.Spill
	seq     map[string]int

	next int

	// Now returns the current time. Can be mocked for tests.
	Now func() time.Time
}

func NewJournal() *Journal {
	return &Journal{
		entries: make(map[string]*journal.Entry),
		spills:  make(map[string]*journal.Spill),
		seq:     make(map[string]int),
		Now:     time.Now,
	}
}

func (j *Journal) Begin(ctx context.Context, e *journal.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := j.Now().UTC()
	e.State = journal.StateWriting
	e.CreatedAt, e.UpdatedAt = now, now

	cp := *e
	j.entries[e.ID] = &cp
	j.order(e.ID)
	return nil
}

func (j *Journal) MarkWritten(ctx context.Context, id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	e, ok := j.entries[id]
	if !ok {
		return journal.NewErrEntryNotFound(id)
	}
	e.State = journal.StateWritten
	e.UpdatedAt = j.Now().UTC()
	return nil
}

func (j *Journal) Complete(ctx context.Context, id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.entries[id]; !ok {
		return journal.NewErrEntryNotFound(id)
	}
	delete(j.entries, id)
	delete(j.seq, id)
	return nil
}

func (j *Journal) Pending(ctx context.Context) ([]*journal.Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]*journal.Entry, 0, len(j.entries))
	for _, e := range j.entries {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool { return j.seq[out[a].ID] < j.seq[out[b].ID] })
	return out, nil
}

func (j *Journal) Spill(ctx context.Context, s *journal.Spill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = j.Now().UTC()

	cp := *s
	j.spills[s.ID] = &cp
	j.order(s.ID)
	return nil
}

func (j *Journal) Spills(ctx context.Context) ([]*journal.Spill, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]*journal.Spill, 0, len(j.spills))
	for _, s := range j.spills {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool { return j.seq[out[a].ID] < j.seq[out[b].ID] })
	return out, nil
}

func (j *Journal) RemoveSpill(ctx context.Context, id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.spills[id]; !ok {
		return journal.NewErrEntryNotFound(id)
	}
	delete(j.spills, id)
	delete(j.seq, id)
	return nil
}

// order records insertion order, which timestamps alone cannot give when
// the clock is mocked.
func (j *Journal) order(id string) {
	j.next++
	j.seq[id] = j.next
}
