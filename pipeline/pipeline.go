// Package pipeline drives records from a source through batching, coercion,
// file writing and commit for one (namespace, entity) pair at a time.
//
// Each flushed batch follows the same path: coerce, write any quarantined
// records, record an intent in the journal, upload the files, mark the
// intent written, commit, and remove the intent. A batch that cannot be
// written is spilled to the journal as raw records. Process never commits a
// batch before an earlier one.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/featurebasedb/lakeingest/batch"
	"github.com/featurebasedb/lakeingest/coerce"
	"github.com/featurebasedb/lakeingest/columnar"
	"github.com/featurebasedb/lakeingest/commit"
	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/journal"
	"github.com/featurebasedb/lakeingest/logger"
	"github.com/featurebasedb/lakeingest/schema"
	"github.com/featurebasedb/lakeingest/source"
	"github.com/featurebasedb/lakeingest/tracing"
)

const (
	ErrSource errors.Code = "SourceError"
)

// Flush triggers, used as metric labels.
const (
	triggerSize  = "size"
	triggerTime  = "time"
	triggerFlush = "source"
	triggerDrain = "drain"
)

type Config struct {
	Namespace string
	Batch     batch.Config
	Policy    coerce.Policy
}

// Pipeline holds the handles shared by every entity of a run. Process may be
// called concurrently for different entities.
type Pipeline struct {
	cfg         Config
	writer      *columnar.Writer
	coordinator *commit.Coordinator
	journal     journal.Journal
	logger      logger.Logger

	// Now returns the current time for batching and ingest timestamps.
	// Defaults to time.Now; replaced in tests.
	Now func() time.Time
}

func New(cfg Config, w *columnar.Writer, co *commit.Coordinator, j journal.Journal, log logger.Logger) *Pipeline {
	if cfg.Policy == "" {
		cfg.Policy = coerce.PolicyDefault
	}
	if log == nil {
		log = logger.NopLogger
	}
	return &Pipeline{
		cfg:         cfg,
		writer:      w,
		coordinator: co,
		journal:     j,
		logger:      log,
		Now:         time.Now,
	}
}

func (p *Pipeline) Config() Config { return p.cfg }

// run is the state of one Process call.
type run struct {
	p         *Pipeline
	namespace string
	desc      *schema.Descriptor
	src       source.Source
	coercer   *coerce.Coercer
	logger    logger.Logger
}

func (p *Pipeline) newRun(namespace string, desc *schema.Descriptor, src source.Source) *run {
	c := coerce.NewCoercer(p.cfg.Policy)
	c.Now = p.Now
	return &run{
		p:         p,
		namespace: namespace,
		desc:      desc,
		src:       src,
		coercer:   c,
		logger:    p.logger.WithPrefix(fmt.Sprintf("[%s.%s] ", namespace, desc.Table)),
	}
}

// Process reads src until it is exhausted, flushing and committing batches
// as they fill or go stale. When ctx is cancelled the open buffer is spilled
// to the journal and ctx.Err() is returned.
func (p *Pipeline) Process(ctx context.Context, entity string, src source.Source) error {
	desc, err := schema.Lookup(entity)
	if err != nil {
		return err
	}
	r := p.newRun(p.cfg.Namespace, desc, src)

	acc := batch.NewAccumulator(p.cfg.Batch)
	acc.Now = p.Now
	acc.Reset()

	r.logger.Infof("processing with batch size %d, max staleness %v, policy %s",
		acc.Config().Size, acc.Config().MaxStaleness, p.cfg.Policy)

	accepted := CounterRecordsAccepted.WithLabelValues(desc.Table)
	for {
		rec, err := r.next(ctx, acc)
		switch {
		case err == nil:
			accepted.Inc()
			if recs := acc.Accept(rec); recs != nil {
				trigger := triggerSize
				if len(recs) < acc.Config().Size {
					trigger = triggerTime
				}
				if err := r.flush(ctx, recs, trigger); err != nil {
					return err
				}
			}

		case err == io.EOF:
			if recs := acc.Drain(); recs != nil {
				if err := r.flush(ctx, recs, triggerDrain); err != nil {
					return err
				}
			}
			r.logger.Infof("source exhausted")
			return nil

		case ctx.Err() != nil:
			r.spill(acc.Drain(), ctx.Err())
			return ctx.Err()

		case errors.Cause(err) == context.DeadlineExceeded:
			if recs := acc.Poll(); recs != nil {
				if err := r.flush(ctx, recs, triggerTime); err != nil {
					return err
				}
			}

		case errors.Is(err, source.ErrFlush):
			if recs := acc.Drain(); recs != nil {
				if err := r.flush(ctx, recs, triggerFlush); err != nil {
					return err
				}
			}

		default:
			r.spill(acc.Drain(), err)
			return errors.New(ErrSource, fmt.Sprintf("reading %s: %v", desc.Table, err))
		}
	}
}

// next waits for the next record, but no longer than until the buffered
// records go stale. A stale buffer is flushed before waiting.
func (r *run) next(ctx context.Context, acc *batch.Accumulator) (batch.Record, error) {
	deadline, ok := acc.Deadline()
	if !ok {
		return r.src.Record(ctx)
	}
	wait := deadline.Sub(acc.Now())
	if wait <= 0 {
		return nil, context.DeadlineExceeded
	}
	rctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	return r.src.Record(rctx)
}

// flush writes and commits recs, then acknowledges the source. On failure
// the records are spilled to the journal and the error is returned, or the
// context error if the failure came from cancellation.
func (r *run) flush(ctx context.Context, recs []batch.Record, trigger string) error {
	CounterBatchesFlushed.WithLabelValues(r.desc.Table, trigger).Inc()
	if _, err := r.write(ctx, recs, true); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		return err
	}
	if c, ok := r.src.(source.Committer); ok {
		if err := c.Commit(ctx); err != nil {
			return errors.New(ErrSource, fmt.Sprintf("committing source offsets: %v", err))
		}
	}
	return nil
}

// write runs recs through coercion, upload and commit. If spill is set, a
// batch that could not be made durable is spilled before returning the
// error. journaled reports whether every record of recs is held by the
// catalog or the journal after a failure, in which case the caller's copy
// can be dropped and the rest is left for reconcile.
func (r *run) write(ctx context.Context, recs []batch.Record, spill bool) (journaled bool, err error) {
	span, ctx := tracing.StartSpanFromContext(ctx, "Pipeline.write")
	defer span.Finish()
	start := time.Now()

	fail := func(err error) error {
		if spill {
			r.spill(recs, err)
		}
		return err
	}

	b, err := r.coercer.Coerce(r.desc, recs)
	if err != nil {
		return false, fail(errors.Wrap(err, "coercing batch"))
	}
	defer b.Release()
	r.observe(b)

	if len(b.Quarantined) > 0 {
		key, err := r.p.writer.WriteQuarantine(ctx, r.namespace, r.desc, b.IngestTime, b.Quarantined)
		if err != nil {
			return false, fail(errors.Wrap(err, "writing quarantined records"))
		}
		r.logger.Warnf("quarantined %d records to %s", len(b.Quarantined), key)
	}
	if b.Rows() == 0 {
		return false, nil
	}

	encoded, err := r.p.writer.Encode(r.namespace, r.desc, b)
	if err != nil {
		return false, fail(err)
	}
	files := make([]columnar.File, len(encoded))
	for i, e := range encoded {
		files[i] = e.File
	}

	entry := &journal.Entry{Namespace: r.namespace, Entity: r.desc.Table, Files: files}
	if err := r.p.journal.Begin(ctx, entry); err != nil {
		return false, fail(errors.Wrap(err, "journaling intent"))
	}

	for i, e := range encoded {
		if err := r.p.writer.Upload(ctx, e); err != nil {
			if i > 0 {
				return r.salvage(ctx, entry, files[:i], b, recs, err)
			}
			// The raw records are spilled instead, so the entry must not be
			// committed by a later reconcile.
			if cerr := r.p.journal.Complete(context.Background(), entry.ID); cerr != nil {
				r.logger.Errorf("removing journal entry %s: %v", entry.ID, cerr)
			}
			return false, fail(err)
		}
	}
	if err := r.p.journal.MarkWritten(ctx, entry.ID); err != nil {
		r.logOrphans(files)
		return true, errors.Wrap(err, "journaling written files")
	}

	res, err := r.p.coordinator.Append(ctx, r.namespace, r.desc, files)
	if err != nil {
		r.logOrphans(files)
		return true, errors.Wrap(err, "committing batch")
	}
	if err := r.p.journal.Complete(ctx, entry.ID); err != nil {
		r.logger.Errorf("removing journal entry %s after commit: %v", entry.ID, err)
	}

	HistogramCommitAttempts.WithLabelValues(r.desc.Table).Observe(float64(res.Attempts))
	HistogramFlushDuration.WithLabelValues(r.desc.Table).Observe(time.Since(start).Seconds())
	CounterFilesCommitted.WithLabelValues(r.desc.Table).Add(float64(len(files)))
	CounterRowsCommitted.WithLabelValues(r.desc.Table).Add(float64(b.Rows()))
	span.LogKV("rows", b.Rows(), "files", len(files), "snapshot", res.SnapshotID)
	r.logger.Infof("committed %d rows in %d files as snapshot %d", b.Rows(), len(files), res.SnapshotID)
	return true, nil
}

// salvage finishes a batch whose upload failed after its first files
// reached storage. Stored objects are immutable, so those files are
// journaled as written and committed, and only the records of the files that
// never made it are spilled. Spilling the whole batch would leave the
// uploaded files in the data prefix with their rows spilled a second time.
func (r *run) salvage(ctx context.Context, entry *journal.Entry, uploaded []columnar.File, b *coerce.Batch, recs []batch.Record, cause error) (bool, error) {
	var done int64
	for _, f := range uploaded {
		done += f.Rows
	}
	rest := make([]batch.Record, 0, len(b.Sources)-int(done))
	for _, src := range b.Sources[done:] {
		rest = append(rest, recs[src])
	}

	// The journal is updated even when ctx is done.
	jctx := context.Background()
	kept := &journal.Entry{Namespace: entry.Namespace, Entity: entry.Entity, Files: uploaded}
	if err := r.p.journal.Begin(jctx, kept); err != nil {
		r.logOrphans(uploaded)
		return false, errors.Wrapf(cause, "journaling %d uploaded files failed (%v)", len(uploaded), err)
	}
	if err := r.p.journal.MarkWritten(jctx, kept.ID); err != nil {
		r.logOrphans(uploaded)
		return false, errors.Wrapf(cause, "journaling %d uploaded files failed (%v)", len(uploaded), err)
	}
	if err := r.p.journal.Complete(jctx, entry.ID); err != nil {
		r.logger.Errorf("removing journal entry %s: %v", entry.ID, err)
	}
	spilled := r.spill(rest, cause)

	res, err := r.p.coordinator.Append(ctx, r.namespace, r.desc, uploaded)
	if err != nil {
		r.logOrphans(uploaded)
		return spilled, errors.Wrapf(cause, "committing %d uploaded files failed (%v)", len(uploaded), err)
	}
	if err := r.p.journal.Complete(jctx, kept.ID); err != nil {
		r.logger.Errorf("removing journal entry %s after commit: %v", kept.ID, err)
	}
	CounterFilesCommitted.WithLabelValues(r.desc.Table).Add(float64(len(uploaded)))
	CounterRowsCommitted.WithLabelValues(r.desc.Table).Add(float64(done))
	r.logger.Warnf("committed %d of %d rows in %d files as snapshot %d before upload failed",
		done, b.Rows(), len(uploaded), res.SnapshotID)
	return spilled, cause
}

func (r *run) observe(b *coerce.Batch) {
	t := r.desc.Table
	CounterFieldOutcomes.WithLabelValues(t, coerce.OutcomePresent.String()).Add(float64(b.Report.Total.Present))
	CounterFieldOutcomes.WithLabelValues(t, coerce.OutcomeInvalid.String()).Add(float64(b.Report.Total.Invalid))
	CounterFieldOutcomes.WithLabelValues(t, coerce.OutcomeAbsent.String()).Add(float64(b.Report.Total.Absent))
	CounterRecordsQuarantined.WithLabelValues(t).Add(float64(b.Report.Quarantined))
	if b.Report.Total.Invalid > 0 || b.Report.Quarantined > 0 {
		r.logger.Warnf("coercion: %s", b.Report)
	} else if !b.Report.Clean() {
		r.logger.Debugf("coercion: %s", b.Report)
	}
}

// logOrphans reports files that are in storage but not yet committed. Their
// journal entry stays behind for reconcile.
func (r *run) logOrphans(files []columnar.File) {
	for _, f := range files {
		r.logger.Warnf("uncommitted file %s", f.Path)
	}
}

// spill records recs in the journal. It runs even when the pipeline's
// context is done.
func (r *run) spill(recs []batch.Record, cause error) bool {
	if len(recs) == 0 {
		return true
	}
	s := &journal.Spill{
		Namespace: r.namespace,
		Entity:    r.desc.Table,
		Reason:    cause.Error(),
		Records:   recs,
	}
	if err := r.p.journal.Spill(context.Background(), s); err != nil {
		r.logger.Errorf("spilling %d records (%v) failed, records lost: %v", len(recs), cause, err)
		return false
	}
	CounterRecordsSpilled.WithLabelValues(r.desc.Table).Add(float64(len(recs)))
	r.logger.Warnf("spilled %d records as %s: %v", len(recs), s.ID, cause)
	return true
}
