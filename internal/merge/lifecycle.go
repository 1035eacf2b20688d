package merge

import (
	"context"
	"log/slog"
	"time"

	"github.com/memfold/memfold/internal/dedup"
)

// Sweeper runs the periodic maintenance passes: retiring stale pending
// proposals and clearing orphaned hash cache rows.
type Sweeper struct {
	svc        *Service
	maintainer *dedup.Maintainer
	interval   time.Duration
	logger     *slog.Logger
}

func NewSweeper(svc *Service, maintainer *dedup.Maintainer, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		svc:        svc,
		maintainer: maintainer,
		interval:   interval,
		logger:     logger,
	}
}

// Run blocks until ctx is done, sweeping once per interval. The first sweep
// waits a full interval; proposal reads also expire lazily, so nothing
// depends on the sweeper having run.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one maintenance pass.
func (s *Sweeper) Sweep() {
	if _, err := s.svc.ExpireStale(); err != nil {
		s.logger.Error("proposal expiry sweep failed", "error", err)
	}
	if n, err := s.maintainer.CleanupOrphans(); err != nil {
		s.logger.Error("cache orphan sweep failed", "error", err)
	} else if n > 0 {
		s.logger.Info("orphaned cache rows removed", "count", n)
	}
}
