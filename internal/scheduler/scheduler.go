// Package scheduler orchestrates the digest pipeline: it owns the cron
// triggers, the delivery state machine and the degraded-mode behavior when
// downstream services are unavailable at startup.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Naman6019/News-Agent/internal/config"
	"github.com/Naman6019/News-Agent/internal/dedup"
	"github.com/Naman6019/News-Agent/internal/digest"
	"github.com/Naman6019/News-Agent/internal/feed"
	"github.com/Naman6019/News-Agent/internal/logger"
	"github.com/Naman6019/News-Agent/internal/metrics"
)

const (
	LabelMorning = "morning"
	LabelEvening = "evening"
)

type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateDegraded      State = "degraded"
	StateRunning       State = "running"
	StateStopped       State = "stopped"
)

var (
	ErrInvalidLabel = errors.New("invalid delivery label")
	ErrNoContent    = errors.New("no news content available")
	ErrNoGateway    = errors.New("messaging gateway unavailable")
)

// Aggregator produces the per-category candidate articles for a run.
type Aggregator interface {
	FetchAll(ctx context.Context) map[string][]*feed.Article
}

// Enricher optionally fills Article.Content before summarization.
type Enricher interface {
	EnrichArticles(ctx context.Context, articles []*feed.Article)
}

// Summarizer produces one batch summary per category. Missing entries mean
// the category falls back to raw descriptions.
type Summarizer interface {
	SummarizeAll(ctx context.Context, byCategory map[string][]*feed.Article) map[string]string
}

// Gateway is the messaging boundary. All three sends may fail; only
// SendDigest failures affect the run result.
type Gateway interface {
	SendDigest(ctx context.Context, digest, label string) error
	SendDeliveryConfirmation(ctx context.Context, label string, articleCount int) error
	SendErrorNotification(ctx context.Context, errorMessage string) error
}

// Deps carries the pipeline dependencies. Summarizer and gateway are given
// as constructors: their failure puts the scheduler into degraded mode
// instead of aborting process startup.
type Deps struct {
	Aggregator Aggregator
	Registry   dedup.Registry
	Assembler  *digest.Assembler
	Enricher   Enricher

	NewSummarizer func(ctx context.Context) (Summarizer, error)
	NewGateway    func() (Gateway, error)
}

type jobSpec struct {
	id    string
	name  string
	label string
	spec  string
	entry cron.EntryID
}

type Scheduler struct {
	cfg *config.Config

	mu      sync.Mutex
	state   State
	initErr error
	cron    *cron.Cron
	jobs    []jobSpec

	aggregator Aggregator
	registry   dedup.Registry
	assembler  *digest.Assembler
	enricher   Enricher
	summarizer Summarizer
	gateway    Gateway

	// runLocks serializes overlapping runs for the same label (a manual
	// trigger racing a cron fire); runs for different labels still overlap.
	runLocks map[string]*sync.Mutex

	now func() time.Time // overridable in tests
}

// New constructs the scheduler. The fetch/dedup/assemble stages are always
// available; if the summarizer or gateway cannot be constructed the
// scheduler comes up degraded (manual-only) rather than failing.
func New(ctx context.Context, cfg *config.Config, deps Deps) *Scheduler {
	s := &Scheduler{
		cfg:        cfg,
		state:      StateInitializing,
		aggregator: deps.Aggregator,
		registry:   deps.Registry,
		assembler:  deps.Assembler,
		enricher:   deps.Enricher,
		runLocks: map[string]*sync.Mutex{
			LabelMorning: {},
			LabelEvening: {},
		},
		now: time.Now,
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		s.degrade(fmt.Errorf("load timezone %q: %w", cfg.Timezone, err))
		return s
	}
	s.cron = cron.New(cron.WithLocation(loc))

	if deps.NewSummarizer != nil {
		sum, err := deps.NewSummarizer(ctx)
		if err != nil {
			logger.Warn("summarizer unavailable, digests will use raw descriptions", "error", err)
			s.degrade(fmt.Errorf("summarizer init: %w", err))
		} else {
			s.summarizer = sum
		}
	}

	if deps.NewGateway != nil {
		gw, err := deps.NewGateway()
		if err != nil {
			logger.Warn("messaging gateway unavailable, delivery disabled", "error", err)
			s.degrade(fmt.Errorf("gateway init: %w", err))
		} else {
			s.gateway = gw
		}
	}

	return s
}

// degrade records the first init failure; manual trigger and status remain
// usable, automatic jobs are never registered.
func (s *Scheduler) degrade(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initErr == nil {
		s.initErr = err
	}
	s.state = StateDegraded
}

// Start registers the morning and evening cron triggers and begins firing
// them. In degraded mode it logs and returns nil; the process stays up for
// manual operations.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateRunning:
		return nil
	case StateStopped:
		return fmt.Errorf("scheduler already stopped")
	case StateDegraded:
		logger.Warn("scheduler degraded: automatic delivery disabled", "error", s.initErr)
		return nil
	}

	for _, j := range []struct {
		id, name, label string
		hour            int
	}{
		{"morning_news", "Morning News Delivery", LabelMorning, s.cfg.MorningHour},
		{"evening_news", "Evening News Delivery", LabelEvening, s.cfg.EveningHour},
	} {
		label := j.label
		spec := fmt.Sprintf("0 %d * * *", j.hour)
		entry, err := s.cron.AddFunc(spec, func() {
			if err := s.Deliver(context.Background(), label); err != nil {
				logger.Error("scheduled delivery failed", "label", label, "error", err)
			}
		})
		if err != nil {
			s.initErr = fmt.Errorf("register %s job: %w", j.id, err)
			s.state = StateDegraded
			logger.Error("failed to register cron job, running degraded", "job", j.id, "error", err)
			return nil
		}
		s.jobs = append(s.jobs, jobSpec{id: j.id, name: j.name, label: label, spec: spec, entry: entry})
	}

	s.cron.Start()
	s.state = StateRunning
	logger.Info("scheduler started",
		"morning_hour", s.cfg.MorningHour,
		"evening_hour", s.cfg.EveningHour,
		"timezone", s.cfg.Timezone)
	return nil
}

// Stop cancels all future trigger firings. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStopped {
		return
	}
	if s.cron != nil {
		s.cron.Stop()
	}
	s.state = StateStopped
	logger.Info("scheduler stopped")
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// JobStatus describes one registered trigger for the status endpoints.
type JobStatus struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Trigger string     `json:"trigger"`
	NextRun *time.Time `json:"next_run"`
}

// Status is the scheduler's externally visible state.
type Status struct {
	State     State       `json:"state"`
	IsRunning bool        `json:"is_running"`
	Timezone  string      `json:"timezone"`
	Error     string      `json:"error,omitempty"`
	Jobs      []JobStatus `json:"jobs"`
}

// Status reports the lifecycle state and registered jobs. In degraded or
// stopped states the job list is empty and Error carries the reason, so a
// status query always answers instead of failing.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:     s.state,
		IsRunning: s.state == StateRunning,
		Timezone:  s.cfg.Timezone,
		Jobs:      []JobStatus{},
	}
	if s.initErr != nil {
		st.Error = s.initErr.Error()
	} else if s.state != StateRunning {
		st.Error = fmt.Sprintf("scheduler is %s, automatic delivery inactive", s.state)
	}

	if s.state == StateRunning {
		for _, j := range s.jobs {
			next := s.cron.Entry(j.entry).Next
			js := JobStatus{ID: j.id, Name: j.name, Trigger: j.spec}
			if !next.IsZero() {
				t := next
				js.NextRun = &t
			}
			st.Jobs = append(st.Jobs, js)
		}
	}
	return st
}

// NextRuns maps each delivery label to its next firing time, nil when the
// scheduler is not running.
func (s *Scheduler) NextRuns() map[string]*time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs := map[string]*time.Time{
		LabelMorning: nil,
		LabelEvening: nil,
	}
	if s.state != StateRunning {
		return runs
	}
	for _, j := range s.jobs {
		next := s.cron.Entry(j.entry).Next
		if !next.IsZero() {
			t := next
			runs[j.label] = &t
		}
	}
	return runs
}

// Deliver runs the full pipeline for one delivery window. It is the single
// entry point for both cron triggers and manual triggers. Failures degrade
// to best-effort notifications; the error return describes the run outcome
// for the caller, it is never an unhandled condition.
func (s *Scheduler) Deliver(ctx context.Context, label string) error {
	if label != LabelMorning && label != LabelEvening {
		return fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}

	lock := s.runLocks[label]
	lock.Lock()
	defer lock.Unlock()

	start := s.now()
	defer func() {
		metrics.Global.RecordRunDuration(time.Since(start))
	}()

	logger.Info("starting delivery", "label", label)

	byCategory := s.aggregator.FetchAll(ctx)

	unseen := make(map[string][]*feed.Article, len(byCategory))
	for category, articles := range byCategory {
		if filtered := s.registry.FilterUnseen(articles); len(filtered) > 0 {
			unseen[category] = filtered
		}
	}

	if len(unseen) == 0 {
		msg := fmt.Sprintf("No news content available for %s delivery", label)
		logger.Error(msg)
		metrics.Global.SetError(msg)
		s.notifyError(ctx, msg)
		return fmt.Errorf("%w for %s delivery", ErrNoContent, label)
	}

	if s.enricher != nil {
		var all []*feed.Article
		for _, articles := range unseen {
			all = append(all, articles...)
		}
		s.enricher.EnrichArticles(ctx, all)
	}

	summaries := map[string]string{}
	if s.summarizer != nil {
		summaries = s.summarizer.SummarizeAll(ctx, unseen)
	} else {
		logger.Warn("no summarizer, falling back to article descriptions", "label", label)
	}

	message := s.assembler.Build(label, s.now(), unseen, summaries)

	if s.gateway == nil {
		msg := fmt.Sprintf("Cannot deliver %s digest: messaging gateway unavailable", label)
		logger.Error(msg)
		metrics.Global.SetError(msg)
		s.notifyError(ctx, msg)
		return fmt.Errorf("%w for %s delivery", ErrNoGateway, label)
	}

	if err := s.gateway.SendDigest(ctx, message, label); err != nil {
		msg := fmt.Sprintf("Failed to send %s news digest: %v", label, err)
		logger.Error(msg)
		metrics.Global.SetError(msg)
		s.notifyError(ctx, msg)
		return fmt.Errorf("deliver %s digest: %w", label, err)
	}

	var delivered []string
	for _, articles := range unseen {
		for _, a := range articles {
			delivered = append(delivered, a.ID)
		}
	}
	// The digest is already out; a registry write failure must not fail the run.
	if err := s.registry.RecordDelivered(delivered); err != nil {
		logger.Error("failed to record delivered articles", "error", err, "count", len(delivered))
	}

	metrics.Global.SetLastRun()
	logger.Info("delivery complete", "label", label, "articles", len(delivered))

	if err := s.gateway.SendDeliveryConfirmation(ctx, label, len(delivered)); err != nil {
		logger.Warn("delivery confirmation failed", "label", label, "error", err)
	}
	return nil
}

// notifyError is best-effort: a notification failure is logged and never
// propagated or reattempted.
func (s *Scheduler) notifyError(ctx context.Context, msg string) {
	if s.gateway == nil {
		logger.Warn("error notification skipped, gateway unavailable", "message", msg)
		return
	}
	if err := s.gateway.SendErrorNotification(ctx, msg); err != nil {
		logger.Error("error notification failed", "error", err)
	}
}
