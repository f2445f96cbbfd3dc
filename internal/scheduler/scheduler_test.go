package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Naman6019/News-Agent/internal/config"
	"github.com/Naman6019/News-Agent/internal/dedup"
	"github.com/Naman6019/News-Agent/internal/digest"
	"github.com/Naman6019/News-Agent/internal/feed"
)

type fakeAggregator struct {
	mu     sync.Mutex
	result map[string][]*feed.Article
	calls  int
}

func (f *fakeAggregator) FetchAll(ctx context.Context) map[string][]*feed.Article {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result
}

type fakeGateway struct {
	mu            sync.Mutex
	digests       []string
	confirmations []int
	errorNotices  []string
	digestErr     error
}

func (g *fakeGateway) SendDigest(ctx context.Context, digest, label string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.digestErr != nil {
		return g.digestErr
	}
	g.digests = append(g.digests, digest)
	return nil
}

func (g *fakeGateway) SendDeliveryConfirmation(ctx context.Context, label string, articleCount int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirmations = append(g.confirmations, articleCount)
	return nil
}

func (g *fakeGateway) SendErrorNotification(ctx context.Context, errorMessage string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errorNotices = append(g.errorNotices, errorMessage)
	return nil
}

type fakeSummarizer struct {
	summaries map[string]string
}

func (f *fakeSummarizer) SummarizeAll(ctx context.Context, byCategory map[string][]*feed.Article) map[string]string {
	return f.summaries
}

func testConfig() *config.Config {
	return &config.Config{
		MorningHour:      8,
		EveningHour:      18,
		Timezone:         "UTC",
		MessageCharLimit: 4096,
	}
}

func testArticles() map[string][]*feed.Article {
	return map[string][]*feed.Article{
		"technology": {
			{ID: "id-1", Title: "Chip launched", Description: "A chip launched.", Link: "https://example.com/1", SourceName: "example.com", Category: "technology"},
			{ID: "id-2", Title: "App released", Description: "An app released.", Link: "https://example.com/2", SourceName: "example.com", Category: "technology"},
		},
	}
}

func newTestScheduler(t *testing.T, agg Aggregator, gw Gateway, sum Summarizer) *Scheduler {
	t.Helper()
	deps := Deps{
		Aggregator: agg,
		Registry:   dedup.NewFileRegistry(filepath.Join(t.TempDir(), "delivered.json")),
		Assembler:  digest.NewAssembler([]string{"technology"}, 4096),
	}
	if gw != nil {
		deps.NewGateway = func() (Gateway, error) { return gw, nil }
	}
	if sum != nil {
		deps.NewSummarizer = func(ctx context.Context) (Summarizer, error) { return sum, nil }
	}
	return New(context.Background(), testConfig(), deps)
}

func TestDeliverSuccessRecordsAndConfirms(t *testing.T) {
	agg := &fakeAggregator{result: testArticles()}
	gw := &fakeGateway{}
	s := newTestScheduler(t, agg, gw, &fakeSummarizer{summaries: map[string]string{"technology": "Tech happened."}})

	if err := s.Deliver(context.Background(), LabelMorning); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if len(gw.digests) != 1 {
		t.Fatalf("%d digests sent, want 1", len(gw.digests))
	}
	if !strings.Contains(gw.digests[0], "Tech happened.") {
		t.Error("digest missing the category summary")
	}
	if len(gw.confirmations) != 1 || gw.confirmations[0] != 2 {
		t.Errorf("confirmations = %v, want one confirmation for 2 articles", gw.confirmations)
	}

	// the same articles must not go out twice
	err := s.Deliver(context.Background(), LabelEvening)
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("second Deliver() error = %v, want ErrNoContent", err)
	}
	if len(gw.digests) != 1 {
		t.Errorf("%d digests sent after rerun, want still 1", len(gw.digests))
	}
}

func TestDeliverInvalidLabel(t *testing.T) {
	agg := &fakeAggregator{result: testArticles()}
	s := newTestScheduler(t, agg, &fakeGateway{}, nil)

	err := s.Deliver(context.Background(), "midnight")
	if !errors.Is(err, ErrInvalidLabel) {
		t.Fatalf("error = %v, want ErrInvalidLabel", err)
	}
	if agg.calls != 0 {
		t.Error("pipeline ran for an invalid label")
	}
}

func TestDeliverNoContentNotifies(t *testing.T) {
	agg := &fakeAggregator{result: map[string][]*feed.Article{}}
	gw := &fakeGateway{}
	s := newTestScheduler(t, agg, gw, nil)

	err := s.Deliver(context.Background(), LabelMorning)
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("error = %v, want ErrNoContent", err)
	}
	if len(gw.digests) != 0 {
		t.Error("digest sent despite empty run")
	}
	if len(gw.errorNotices) != 1 {
		t.Fatalf("%d error notices, want 1", len(gw.errorNotices))
	}
	if !strings.Contains(gw.errorNotices[0], "morning") {
		t.Errorf("notice %q does not name the delivery", gw.errorNotices[0])
	}
}

func TestDeliverGatewayFailureLeavesArticlesUnrecorded(t *testing.T) {
	agg := &fakeAggregator{result: testArticles()}
	gw := &fakeGateway{digestErr: fmt.Errorf("twilio down")}
	s := newTestScheduler(t, agg, gw, nil)

	if err := s.Deliver(context.Background(), LabelMorning); err == nil {
		t.Fatal("Deliver() succeeded despite gateway failure")
	}
	if len(gw.errorNotices) != 1 {
		t.Errorf("%d error notices, want 1", len(gw.errorNotices))
	}

	// nothing recorded: a later run must see the same articles again
	gw.digestErr = nil
	if err := s.Deliver(context.Background(), LabelMorning); err != nil {
		t.Fatalf("retry Deliver() error = %v", err)
	}
	if len(gw.digests) != 1 {
		t.Errorf("%d digests after retry, want 1", len(gw.digests))
	}
}

func TestDeliverWithoutSummarizerFallsBack(t *testing.T) {
	agg := &fakeAggregator{result: testArticles()}
	gw := &fakeGateway{}
	s := newTestScheduler(t, agg, gw, nil)

	if err := s.Deliver(context.Background(), LabelMorning); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if !strings.Contains(gw.digests[0], "• A chip launched.") {
		t.Error("digest missing description fallback")
	}
}

func TestDegradedWhenGatewayInitFails(t *testing.T) {
	agg := &fakeAggregator{result: testArticles()}
	s := New(context.Background(), testConfig(), Deps{
		Aggregator: agg,
		Registry:   dedup.NewFileRegistry(filepath.Join(t.TempDir(), "delivered.json")),
		Assembler:  digest.NewAssembler([]string{"technology"}, 4096),
		NewGateway: func() (Gateway, error) { return nil, fmt.Errorf("credentials missing") },
	})

	if got := s.State(); got != StateDegraded {
		t.Fatalf("State() = %v, want degraded", got)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start() in degraded mode error = %v, want nil", err)
	}
	if got := s.State(); got != StateDegraded {
		t.Errorf("State() after Start = %v, want still degraded", got)
	}

	st := s.Status()
	if st.IsRunning {
		t.Error("degraded status reports running")
	}
	if st.Error == "" {
		t.Error("degraded status missing error")
	}
	if len(st.Jobs) != 0 {
		t.Errorf("degraded status lists %d jobs, want 0", len(st.Jobs))
	}
	for label, next := range s.NextRuns() {
		if next != nil {
			t.Errorf("NextRuns()[%s] = %v, want nil while degraded", label, next)
		}
	}

	// manual runs still work up to the delivery step
	err := s.Deliver(context.Background(), LabelMorning)
	if !errors.Is(err, ErrNoGateway) {
		t.Errorf("Deliver() error = %v, want ErrNoGateway", err)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	s := newTestScheduler(t, &fakeAggregator{}, &fakeGateway{}, nil)

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if got := s.State(); got != StateRunning {
		t.Fatalf("State() = %v, want running", got)
	}

	st := s.Status()
	if !st.IsRunning || len(st.Jobs) != 2 {
		t.Fatalf("status = %+v, want running with 2 jobs", st)
	}
	for _, j := range st.Jobs {
		if j.NextRun == nil {
			t.Errorf("job %s has no next run", j.ID)
		}
	}
	if st.Jobs[0].Trigger != "0 8 * * *" || st.Jobs[1].Trigger != "0 18 * * *" {
		t.Errorf("triggers = %q, %q", st.Jobs[0].Trigger, st.Jobs[1].Trigger)
	}

	runs := s.NextRuns()
	if runs[LabelMorning] == nil || runs[LabelEvening] == nil {
		t.Error("NextRuns() missing scheduled times while running")
	}

	// starting twice is a no-op
	if err := s.Start(); err != nil {
		t.Errorf("second Start() error = %v", err)
	}

	s.Stop()
	s.Stop() // idempotent
	if got := s.State(); got != StateStopped {
		t.Errorf("State() after Stop = %v, want stopped", got)
	}
	if err := s.Start(); err == nil {
		t.Error("Start() after Stop succeeded, want error")
	}
}
