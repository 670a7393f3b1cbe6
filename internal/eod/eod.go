// Package eod implements the three-phase end-of-day scheduler:
// wall-clock jobs timed backwards from each instrument's market
// close, with coalesce=false/max_instances=1 semantics; a run that
// outlasts the misfire grace is logged, not skipped.
// Driven by github.com/robfig/cron/v3 for the precision offsets a
// fixed-interval ticker cannot express.
package eod

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"arbitrage/internal/config"
	"arbitrage/pkg/utils"

	"github.com/robfig/cron/v3"
)

// Phase identifies one of the three EOD jobs.
type Phase string

const (
	PhaseConditionCheck Phase = "condition_check" // T-45s
	PhaseExecution      Phase = "execution"        // T-30s
	PhaseTracking       Phase = "tracking"          // T-15s
)

// Job is invoked by the scheduler for one instrument at one phase.
type Job func(ctx context.Context, instrument string, phase Phase) error

// Scheduler runs the per-instrument EOD job triplet via robfig/cron.
type Scheduler struct {
	cfg         config.EODConfig
	instruments map[string]config.InstrumentConfig
	job         Job
	cron        *cron.Cron
	log         *utils.Logger
}

// New builds a Scheduler. job is invoked for every enabled instrument
// at every phase, at its computed offset before that instrument's
// close time.
func New(cfg config.EODConfig, instruments map[string]config.InstrumentConfig, job Job, log *utils.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	return &Scheduler{cfg: cfg, instruments: instruments, job: job, cron: c, log: log}
}

// Start registers all instrument/phase jobs and starts the cron
// scheduler. Returns an error if any instrument's close time or offset
// computation is invalid.
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	for instrument, instr := range s.instruments {
		if enabled, ok := s.cfg.InstrumentsEnabled[instrument]; ok && !enabled {
			continue
		}
		if instr.CloseTime == "" {
			continue
		}
		phases := []struct {
			phase  Phase
			offset int
		}{
			{PhaseConditionCheck, s.cfg.ConditionCheckSeconds},
			{PhaseExecution, s.cfg.ExecutionSeconds},
			{PhaseTracking, s.cfg.TrackingSeconds},
		}
		for _, p := range phases {
			spec, err := cronSpecBefore(instr.CloseTime, p.offset)
			if err != nil {
				return fmt.Errorf("eod: instrument %s phase %s: %w", instrument, p.phase, err)
			}
			instrument, phase := instrument, p.phase // capture
			_, err = s.cron.AddFunc(spec, func() {
				s.runWithMisfireGrace(instrument, phase)
			})
			if err != nil {
				return fmt.Errorf("eod: schedule instrument %s phase %s: %w", instrument, p.phase, err)
			}
		}
	}
	s.cron.Start()
	return nil
}

// Stop drains in-flight jobs and stops the cron scheduler.
func (s *Scheduler) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
}

// runWithMisfireGrace invokes the job with a 25s context and logs a
// warning when the run took longer than MisfireGraceSeconds. It does
// not compare the actual fire time with the scheduled one: a job that
// fires late still runs.
func (s *Scheduler) runWithMisfireGrace(instrument string, phase Phase) {
	deadline := time.Duration(s.cfg.MisfireGraceSeconds) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	start := time.Now()
	if err := s.job(ctx, instrument, phase); err != nil {
		if s.log != nil {
			s.log.Error("eod job failed", utils.Err(err), utils.String("instrument", instrument), utils.String("phase", string(phase)))
		}
		return
	}
	if elapsed := time.Since(start); elapsed > deadline && s.log != nil {
		s.log.Warn("eod job exceeded misfire grace", utils.String("instrument", instrument), utils.String("phase", string(phase)))
	}
}

// cronSpecBefore computes a 6-field (with-seconds) cron spec firing
// offsetSeconds before closeTime ("HH:MM"), run daily.
func cronSpecBefore(closeTime string, offsetSeconds int) (string, error) {
	parts := strings.Split(closeTime, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid close time %q, want HH:MM", closeTime)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil {
		return "", fmt.Errorf("invalid close hour %q: %w", parts[0], err)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", fmt.Errorf("invalid close minute %q: %w", parts[1], err)
	}

	closeSeconds := hh*3600 + mm*60
	fireSeconds := closeSeconds - offsetSeconds
	for fireSeconds < 0 {
		fireSeconds += 24 * 3600
	}
	fireSeconds %= 24 * 3600

	ss := fireSeconds % 60
	fireMinutes := fireSeconds / 60
	fireMin := fireMinutes % 60
	fireHour := fireMinutes / 60

	return fmt.Sprintf("%d %d %d * * *", ss, fireMin, fireHour), nil
}
