package service

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/rl1809/rowstore/internal/core/domain"
	"github.com/rl1809/rowstore/internal/logger"
	"github.com/rl1809/rowstore/internal/metrics"
	"github.com/rl1809/rowstore/internal/port"
)

const journalWriteTimeout = 5 * time.Second

// RunJournal drains the change queue into repo with workerCount workers. It
// returns once the queue is closed and every worker has finished.
func RunJournal(queue <-chan domain.RowChange, repo port.JournalRepository, workerCount int, logg *logger.Logger, m *metrics.Metrics) {
	if queue == nil {
		return
	}
	if workerCount < 1 {
		workerCount = 1
	}

	p := pool.New().WithMaxGoroutines(workerCount)
	for i := 0; i < workerCount; i++ {
		id := i
		p.Go(func() {
			journalWorker(id, queue, repo, logg, m)
		})
	}
	p.Wait()
}

func journalWorker(id int, queue <-chan domain.RowChange, repo port.JournalRepository, logg *logger.Logger, m *metrics.Metrics) {
	for change := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
		err := repo.AppendChange(ctx, change)
		cancel()

		m.ObserveJournalWrite(err)
		if logg == nil {
			continue
		}
		logCtx := logg.WithFields(context.Background(), map[string]any{
			"worker":    id,
			"change_id": change.ID,
			"op":        string(change.Op),
			"row_id":    change.Row.ID,
		})
		if err != nil {
			logg.Error(logCtx, "journal.write_failed", err)
			continue
		}
		logg.Debug(logCtx, "journal.saved")
	}
}
