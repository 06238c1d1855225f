package pipeline

import (
	"context"

	"github.com/featurebasedb/lakeingest/columnar"
	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/journal"
	"github.com/featurebasedb/lakeingest/schema"
	"github.com/featurebasedb/lakeingest/storage"
	"github.com/featurebasedb/lakeingest/tracing"
)

// ReconcileResult counts what Reconcile did.
type ReconcileResult struct {
	// Committed is the number of journaled batches committed.
	Committed int
	// Abandoned is the number of batches whose upload never finished.
	Abandoned int
	// Replayed is the number of spilled batches written and committed.
	Replayed int
	// Failed is the number of entries left in the journal.
	Failed int
}

// Reconcile finishes work left in the journal. Written batches are verified
// against their checksums and committed; batches whose upload was
// interrupted are committed if every file made it to storage intact and
// abandoned otherwise. Spilled batches are then replayed through the normal
// write path. Committing is idempotent, so running Reconcile twice is safe.
func (p *Pipeline) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	span, ctx := tracing.StartSpanFromContext(ctx, "Pipeline.Reconcile")
	defer span.Finish()

	res := &ReconcileResult{}

	entries, err := p.journal.Pending(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing journal entries")
	}
	for _, e := range entries {
		if err := p.reconcileEntry(ctx, e, res); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			p.logger.Errorf("reconciling journal entry %s: %v", e.ID, err)
			res.Failed++
		}
	}

	spills, err := p.journal.Spills(ctx)
	if err != nil {
		return res, errors.Wrap(err, "listing spilled batches")
	}
	for _, s := range spills {
		if err := p.replay(ctx, s); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			p.logger.Errorf("replaying spilled batch %s: %v", s.ID, err)
			res.Failed++
			continue
		}
		res.Replayed++
	}

	span.LogKV("committed", res.Committed, "abandoned", res.Abandoned, "replayed", res.Replayed, "failed", res.Failed)
	p.logger.Infof("reconcile: committed %d, abandoned %d, replayed %d, failed %d",
		res.Committed, res.Abandoned, res.Replayed, res.Failed)
	return res, nil
}

func (p *Pipeline) reconcileEntry(ctx context.Context, e *journal.Entry, res *ReconcileResult) error {
	desc, err := schema.Lookup(e.Entity)
	if err != nil {
		return err
	}

	bad, err := p.verify(ctx, e.Files)
	if err != nil {
		return err
	}
	if len(bad) > 0 {
		if e.State == journal.StateWritten {
			return errors.Errorf("written file %s is missing or corrupt", bad[0])
		}
		for _, f := range e.Files {
			p.logger.Warnf("abandoning uncommitted file %s from interrupted upload", f.Path)
		}
		res.Abandoned++
		return p.journal.Complete(ctx, e.ID)
	}

	if _, err := p.coordinator.Append(ctx, e.Namespace, desc, e.Files); err != nil {
		return errors.Wrap(err, "committing")
	}
	res.Committed++
	return p.journal.Complete(ctx, e.ID)
}

// verify returns the paths of files that are missing from storage or whose
// content does not match the recorded checksum.
func (p *Pipeline) verify(ctx context.Context, files []columnar.File) ([]string, error) {
	var bad []string
	for _, f := range files {
		data, err := p.writer.Store().Get(ctx, f.Path)
		if errors.Is(err, storage.ErrObjectNotFound) {
			bad = append(bad, f.Path)
			continue
		} else if err != nil {
			return nil, errors.Wrapf(err, "reading %s", f.Path)
		}
		if int64(len(data)) != f.Size || columnar.Checksum(data) != f.Checksum {
			bad = append(bad, f.Path)
		}
	}
	return bad, nil
}

// replay writes a spilled batch as if it had just been flushed. The spill is
// removed once its records are committed, journaled as files, or partly
// spilled again after a partial upload.
func (p *Pipeline) replay(ctx context.Context, s *journal.Spill) error {
	desc, err := schema.Lookup(s.Entity)
	if err != nil {
		return err
	}
	r := p.newRun(s.Namespace, desc, nil)
	r.logger.Infof("replaying %d spilled records from %s (%s)", len(s.Records), s.ID, s.Reason)
	journaled, err := r.write(ctx, s.Records, false)
	if err != nil && !journaled {
		return err
	}
	if rerr := p.journal.RemoveSpill(ctx, s.ID); rerr != nil {
		return errors.Wrap(rerr, "removing replayed spill")
	}
	// The files are journaled as written; the next reconcile commits them.
	return err
}
