package metrics

import (
	"github.com/fauxcloud/fauxcloud/internal/sqldb"
)

// Snapshot is the poll-able view of the emulator: process-wide query count
// plus per-database table metadata, shaped for the monitoring side channel.
type Snapshot struct {
	QueryCount    uint64          `json:"queryCount"`
	DatabaseCount int             `json:"databaseCount"`
	Databases     []DatabaseStats `json:"databases"`
}

type DatabaseStats struct {
	Name   string       `json:"name"`
	Tables []TableStats `json:"tables"`
}

type TableStats struct {
	Name        string `json:"name"`
	ColumnCount int    `json:"columnCount"`
	RowCount    int    `json:"rowCount"`
}

// Collector snapshots the executor and its registry on demand. It keeps no
// state of its own; the counters live where the work happens.
type Collector struct {
	executor *sqldb.Executor
}

func NewCollector(executor *sqldb.Executor) *Collector {
	return &Collector{executor: executor}
}

func (c *Collector) Snapshot() Snapshot {
	aRegistry := c.executor.Registry()
	names := aRegistry.Names()

	snap := Snapshot{
		QueryCount:    c.executor.QueryCount(),
		DatabaseCount: len(names),
		Databases:     make([]DatabaseStats, 0, len(names)),
	}
	for _, name := range names {
		aDatabase, ok := aRegistry.Get(name)
		if !ok {
			continue
		}
		stats := DatabaseStats{Name: name, Tables: make([]TableStats, 0, 4)}
		for _, info := range aDatabase.Tables() {
			stats.Tables = append(stats.Tables, TableStats{
				Name:        info.Name,
				ColumnCount: len(info.Columns),
				RowCount:    info.RowCount,
			})
		}
		snap.Databases = append(snap.Databases, stats)
	}
	return snap
}
