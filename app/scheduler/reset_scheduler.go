// Package scheduler
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	businessflow "github.com/simurgh-io/simurgh/business_flow"
)

// ResetScheduler drives the daily counter reset. It polls on a short interval
// and fires the reset flow once per boundary crossing; the flow's marker and
// distributed lock make the sweep idempotent, so an extra tick or an extra
// replica running this loop is harmless.
type ResetScheduler struct {
	resetFlow businessflow.DailyResetFlow
	logger    *log.Logger
	interval  time.Duration

	logFile *os.File
}

func NewResetScheduler(resetFlow businessflow.DailyResetFlow, interval time.Duration) *ResetScheduler {
	if interval <= 0 {
		interval = time.Minute
	}

	s := &ResetScheduler{
		resetFlow: resetFlow,
		interval:  interval,
	}

	if err := s.initSchedulerLogger(); err != nil {
		s.logger = log.Default()
		s.logger.Printf("reset scheduler: failed to initialize file logger: %v", err)
	}

	return s
}

// initSchedulerLogger configures a logger that writes to both stdout and a persistent file under data/ (or /data)
func (s *ResetScheduler) initSchedulerLogger() error {
	candidates := []string{
		filepath.Join("data"),
		"/data",
	}
	for _, dir := range candidates {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			continue
		}
		logPath := filepath.Join(dir, "reset_scheduler.log")
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			continue
		}
		s.logFile = f
		mw := io.MultiWriter(os.Stdout, f)
		s.logger = log.New(mw, "reset ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
		return nil
	}
	return fmt.Errorf("could not create reset scheduler log file in any candidate directory")
}

// Start launches the scheduler loop in a background goroutine and returns a stop function
func (s *ResetScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				if s.logFile != nil {
					s.logFile.Close()
				}
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	return cancel
}

func (s *ResetScheduler) runOnce(ctx context.Context) {
	due, err := s.resetFlow.ShouldReset(ctx)
	if err != nil {
		s.logger.Printf("reset: boundary check failed: %v", err)
		return
	}
	if !due {
		return
	}

	affected, err := s.resetFlow.ResetDailyCounters(ctx)
	if err != nil {
		if errors.Is(err, businessflow.ErrResetLockHeld) {
			s.logger.Printf("reset: another replica holds the lock, skipping")
			return
		}
		s.logger.Printf("reset: sweep failed: %v", err)
		return
	}

	s.logger.Printf("reset: zeroed daily counters on %d instances, next boundary at %s",
		affected, s.resetFlow.NextResetTime().Format(time.RFC3339))
}
