package mosaic

import (
	"time"

	"go.uber.org/zap"
)

// SweepBudget bounds one administrative sweep over empty tables.
type SweepBudget struct {
	// TimeBudget stops the sweep once exceeded; zero means unbounded.
	TimeBudget time.Duration

	// Generations is how many sweeps a table must have stayed empty before
	// it is deleted. Zero deletes empty tables on the first sweep that
	// sees them.
	Generations uint64
}

// DeleteEmptyTables deletes tables that stayed empty for longer than the
// budget's generation threshold, bounded by its time budget. Meant to be
// driven periodically by the frame loop; returns the number of tables
// deleted.
func (s *Store) DeleteEmptyTables(budget SweepBudget) int {
	s.sweepGen += 1

	start := time.Now()
	deleted := 0

	// iterate a snapshot, drop mutates the graph's table list
	tables := make([]*Table, len(s.graph.tables))
	copy(tables, s.graph.tables)

	for _, table := range tables {
		if budget.TimeBudget > 0 && time.Since(start) > budget.TimeBudget {
			break
		}

		if table == s.root || table.locks.Load() > 0 || len(table.entities) > 0 {
			continue
		}

		if table.emptySince == 0 {
			table.emptySince = s.sweepGen
			continue
		}

		if s.sweepGen-table.emptySince < budget.Generations {
			continue
		}

		s.emitTable(TableDeleted, table)

		for _, column := range table.columns {
			if column != nil {
				column.destructAll()
			}
		}

		s.graph.drop(table)
		deleted += 1
	}

	if deleted > 0 {
		s.logger.Debug("empty tables deleted",
			zap.Int("count", deleted),
			zap.Duration("elapsed", time.Since(start)))
	}

	return deleted
}
