package columnar

import (
	"fmt"
	"strings"
	"time"

	"github.com/featurebasedb/lakeingest/storage"
)

// Partition keys recorded for every data file.
const (
	PartitionIngestDate = "ingest_date"
	PartitionRunID      = "run_id"
)

const (
	dataDir       = "data"
	quarantineDir = "quarantine"

	// DataExt is the extension of every data file.
	DataExt = ".parquet"
)

// TablePrefix returns the key prefix all objects of a table live under.
func TablePrefix(prefix, namespace, table string) string {
	return storage.JoinKey(prefix, namespace, table) + "/"
}

// DataPrefix returns the key prefix the data files of a table live under.
func DataPrefix(prefix, namespace, table string) string {
	return storage.JoinKey(prefix, namespace, table, dataDir) + "/"
}

// QuarantinePrefix returns the key prefix the quarantined records of a table
// live under.
func QuarantinePrefix(prefix, namespace, table string) string {
	return storage.JoinKey(prefix, namespace, table, quarantineDir) + "/"
}

// IngestDate formats t the way it appears in partition paths.
func IngestDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func partitionDir(prefix, namespace, table, kind string, ingest time.Time, runID string) string {
	return storage.JoinKey(prefix, namespace, table, kind,
		PartitionIngestDate+"="+IngestDate(ingest),
		PartitionRunID+"="+runID)
}

// DataKey returns the key of part n of a run.
func DataKey(prefix, namespace, table string, ingest time.Time, runID string, part int) string {
	return partitionDir(prefix, namespace, table, dataDir, ingest, runID) + fmt.Sprintf("/part-%05d", part) + DataExt
}

// QuarantineKey returns the key quarantined records of a run are written to.
func QuarantineKey(prefix, namespace, table string, ingest time.Time, runID string) string {
	return partitionDir(prefix, namespace, table, quarantineDir, ingest, runID) + "/part-00000.jsonl"
}

// ParsePartition extracts the partition values encoded in a data key. ok is
// false if key does not follow the data file layout.
func ParsePartition(key string) (partition map[string]string, ok bool) {
	if !strings.HasSuffix(key, DataExt) {
		return nil, false
	}
	partition = make(map[string]string, 2)
	for _, seg := range strings.Split(key, "/") {
		for _, k := range []string{PartitionIngestDate, PartitionRunID} {
			if v := strings.TrimPrefix(seg, k+"="); v != seg {
				partition[k] = v
			}
		}
	}
	return partition, len(partition) == 2
}
