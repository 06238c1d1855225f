// Package boltdb contains the boltdb implementation of journal.Journal.
package boltdb

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"

	"github.com/featurebasedb/lakeingest/boltdb"
	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/journal"
	"github.com/featurebasedb/lakeingest/logger"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketPending = boltdb.Bucket("journal-pending")
	bucketSpill   = boltdb.Bucket("journal-spill")
)

// JournalBuckets defines the buckets used by this package. It can be called
// during setup to create the buckets ahead of time.
var JournalBuckets []boltdb.Bucket = []boltdb.Bucket{
	bucketPending,
	bucketSpill,
}

// Ensure type implements interface.
var _ journal.Journal = (*Journal)(nil)

// Journal stores entries and spills as JSON keyed by id. Each document
// carries the bucket sequence it was written at so listings come back in
// insertion order.
type Journal struct {
	db *boltdb.DB

	logger logger.Logger
}

// NewJournal returns a new instance of Journal. The db must have been opened
// with JournalBuckets registered.
func NewJournal(db *boltdb.DB, logger logger.Logger) *Journal {
	return &Journal{
		db:     db,
		logger: logger,
	}
}

type entryDoc struct {
	Seq uint64 `json:"seq"`
	*journal.Entry
}

type spillDoc struct {
	Seq uint64 `json:"seq"`
	*journal.Spill
}

func (j *Journal) Begin(ctx context.Context, e *journal.Entry) error {
	tx, err := j.db.BeginTx(ctx, true)
	if err != nil {
		return errors.Wrap(err, "getting transaction")
	}
	defer tx.Rollback()

	bkt, err := tx.Bkt(bucketPending)
	if err != nil {
		return err
	}
	seq, err := bkt.NextSequence()
	if err != nil {
		return errors.Wrap(err, "getting sequence")
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.State = journal.StateWriting
	e.CreatedAt, e.UpdatedAt = tx.Now(), tx.Now()

	if err := putJSON(bkt, e.ID, entryDoc{Seq: seq, Entry: e}); err != nil {
		return errors.Wrap(err, "putting entry")
	}
	return tx.Commit()
}

func (j *Journal) MarkWritten(ctx context.Context, id string) error {
	tx, err := j.db.BeginTx(ctx, true)
	if err != nil {
		return errors.Wrap(err, "getting transaction")
	}
	defer tx.Rollback()

	bkt, err := tx.Bkt(bucketPending)
	if err != nil {
		return err
	}
	b := bkt.Get([]byte(id))
	if b == nil {
		return journal.NewErrEntryNotFound(id)
	}
	doc := entryDoc{Entry: &journal.Entry{}}
	if err := json.Unmarshal(b, &doc); err != nil {
		return errors.Wrap(err, "unmarshalling entry json")
	}
	doc.State = journal.StateWritten
	doc.UpdatedAt = tx.Now()

	if err := putJSON(bkt, id, doc); err != nil {
		return errors.Wrap(err, "putting entry")
	}
	return tx.Commit()
}

func (j *Journal) Complete(ctx context.Context, id string) error {
	return j.remove(ctx, bucketPending, id)
}

func (j *Journal) Pending(ctx context.Context) ([]*journal.Entry, error) {
	tx, err := j.db.BeginTx(ctx, false)
	if err != nil {
		return nil, errors.Wrap(err, "beginning tx")
	}
	defer tx.Rollback()

	bkt, err := tx.Bkt(bucketPending)
	if err != nil {
		return nil, err
	}

	var docs []entryDoc
	err = bkt.ForEach(func(k, v []byte) error {
		doc := entryDoc{Entry: &journal.Entry{}}
		if err := json.Unmarshal(v, &doc); err != nil {
			return errors.Wrapf(err, "unmarshalling entry %s", k)
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(a, b int) bool { return docs[a].Seq < docs[b].Seq })

	out := make([]*journal.Entry, len(docs))
	for i := range docs {
		out[i] = docs[i].Entry
	}
	return out, nil
}

func (j *Journal) Spill(ctx context.Context, s *journal.Spill) error {
	tx, err := j.db.BeginTx(ctx, true)
	if err != nil {
		return errors.Wrap(err, "getting transaction")
	}
	defer tx.Rollback()

	bkt, err := tx.Bkt(bucketSpill)
	if err != nil {
		return err
	}
	seq, err := bkt.NextSequence()
	if err != nil {
		return errors.Wrap(err, "getting sequence")
	}

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = tx.Now()

	if err := putJSON(bkt, s.ID, spillDoc{Seq: seq, Spill: s}); err != nil {
		return errors.Wrap(err, "putting spill")
	}
	return tx.Commit()
}

// Spills decodes numbers in spilled records as json.Number, so integral
// values replay without passing through float64.
func (j *Journal) Spills(ctx context.Context) ([]*journal.Spill, error) {
	tx, err := j.db.BeginTx(ctx, false)
	if err != nil {
		return nil, errors.Wrap(err, "beginning tx")
	}
	defer tx.Rollback()

	bkt, err := tx.Bkt(bucketSpill)
	if err != nil {
		return nil, err
	}

	var docs []spillDoc
	err = bkt.ForEach(func(k, v []byte) error {
		doc := spillDoc{Spill: &journal.Spill{}}
		dec := json.NewDecoder(bytes.NewReader(v))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return errors.Wrapf(err, "unmarshalling spill %s", k)
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(a, b int) bool { return docs[a].Seq < docs[b].Seq })

	out := make([]*journal.Spill, len(docs))
	for i := range docs {
		out[i] = docs[i].Spill
	}
	return out, nil
}

func (j *Journal) RemoveSpill(ctx context.Context, id string) error {
	return j.remove(ctx, bucketSpill, id)
}

func (j *Journal) remove(ctx context.Context, name boltdb.Bucket, id string) error {
	tx, err := j.db.BeginTx(ctx, true)
	if err != nil {
		return errors.Wrap(err, "getting transaction")
	}
	defer tx.Rollback()

	bkt, err := tx.Bkt(name)
	if err != nil {
		return err
	}
	if bkt.Get([]byte(id)) == nil {
		return journal.NewErrEntryNotFound(id)
	}
	if err := bkt.Delete([]byte(id)); err != nil {
		return errors.Wrapf(err, "deleting %s", id)
	}
	return tx.Commit()
}

func putJSON(bkt *bolt.Bucket, key string, v interface{}) error {
	val, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshalling to json")
	}
	return bkt.Put([]byte(key), val)
}
