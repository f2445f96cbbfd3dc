package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Naman6019/News-Agent/internal/config"
	"github.com/Naman6019/News-Agent/internal/dedup"
	"github.com/Naman6019/News-Agent/internal/digest"
	"github.com/Naman6019/News-Agent/internal/feed"
	"github.com/Naman6019/News-Agent/internal/logger"
	"github.com/Naman6019/News-Agent/internal/metrics"
	"github.com/Naman6019/News-Agent/internal/scheduler"
)

// server is the HTTP control surface: health, metrics, scheduler control and
// on-demand digest previews.
type server struct {
	cfg        *config.Config
	sched      *scheduler.Scheduler
	aggregator *feed.Aggregator
	registry   dedup.Registry
	enricher   scheduler.Enricher
	assembler  *digest.Assembler
}

func newServer(cfg *config.Config, sched *scheduler.Scheduler, aggregator *feed.Aggregator, registry dedup.Registry, enricher scheduler.Enricher, assembler *digest.Assembler) *server {
	return &server{
		cfg:        cfg,
		sched:      sched,
		aggregator: aggregator,
		registry:   registry,
		enricher:   enricher,
		assembler:  assembler,
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/v1/scheduler/status", s.handleSchedulerStatus)
	mux.HandleFunc("POST /api/v1/scheduler/trigger/{label}", s.handleTrigger)
	mux.HandleFunc("GET /api/v1/scheduler/next-runs", s.handleNextRuns)
	mux.HandleFunc("GET /api/v1/news/digest", s.handleDigestPreview)
	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.sched.State()
	status := "healthy"
	code := http.StatusOK
	if state != scheduler.StateRunning {
		status = "degraded"
	}
	writeJSON(w, code, map[string]interface{}{
		"status":          status,
		"scheduler_state": state,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metrics.Global.GetStats())
}

func (s *server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Status())
}

// handleTrigger fires a delivery out of schedule. The run happens in the
// background; the response only acknowledges the trigger.
func (s *server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	label := r.PathValue("label")
	if label != scheduler.LabelMorning && label != scheduler.LabelEvening {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "label must be \"morning\" or \"evening\"",
		})
		return
	}

	go func() {
		if err := s.sched.Deliver(context.Background(), label); err != nil {
			logger.Error("manual delivery failed", "label", label, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "triggered",
		"label":  label,
	})
}

func (s *server) handleNextRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"timezone":  s.cfg.Timezone,
		"next_runs": s.sched.NextRuns(),
	})
}

// handleDigestPreview assembles a digest on demand without delivering it or
// recording anything, so previews never consume articles.
func (s *server) handleDigestPreview(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("delivery_time")
	if label == "" {
		label = scheduler.LabelMorning
	}
	if label != scheduler.LabelMorning && label != scheduler.LabelEvening {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "delivery_time must be \"morning\" or \"evening\"",
		})
		return
	}

	ctx := r.Context()
	byCategory := s.aggregator.FetchAll(ctx)

	unseen := make(map[string][]*feed.Article, len(byCategory))
	count := 0
	for category, articles := range byCategory {
		if filtered := s.registry.FilterUnseen(articles); len(filtered) > 0 {
			unseen[category] = filtered
			count += len(filtered)
		}
	}
	if count == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no new articles available",
		})
		return
	}

	if s.enricher != nil {
		var all []*feed.Article
		for _, articles := range unseen {
			all = append(all, articles...)
		}
		s.enricher.EnrichArticles(ctx, all)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"delivery_time": label,
		"article_count": count,
		"digest":        s.assembler.Build(label, time.Now(), unseen, nil),
		"generated_at":  time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		logger.Error("failed to encode response", "error", err)
	}
}
