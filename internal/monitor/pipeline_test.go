package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"realmbot/internal/governance"
	"realmbot/internal/storage"
	kit "realmbot/internal/transport"
	logx "realmbot/pkg/logx"
)

// memStore is an in-memory storage.Store with failure injection.
type memStore struct {
	mu       sync.Mutex
	cfg      storage.MonitorConfig
	seen     map[string]bool
	failMark error
}

func newMemStore() *memStore {
	return &memStore{seen: make(map[string]bool)}
}

func (s *memStore) LoadConfig(ctx context.Context) (storage.MonitorConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, nil
}

func (s *memStore) SaveConfig(ctx context.Context, cfg storage.MonitorConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	return nil
}

func (s *memStore) IsKnown(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[id], nil
}

func (s *memStore) MarkKnown(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMark != nil {
		return s.failMark
	}
	s.seen[id] = true
	return nil
}

func (s *memStore) KnownCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen), nil
}

func (s *memStore) ResetAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = storage.MonitorConfig{}
	s.seen = make(map[string]bool)
	return nil
}

func (s *memStore) Close() error { return nil }

// recSender records every send; failCardTitle injects a send failure.
type recSender struct {
	mu            sync.Mutex
	texts         []string
	cards         []kit.Card
	failCardTitle string
}

func (r *recSender) Text(ctx context.Context, to kit.ChatTarget, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

func (r *recSender) Card(ctx context.Context, to kit.ChatTarget, c kit.Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCardTitle != "" && c.Title == r.failCardTitle {
		return errors.New("send failed")
	}
	r.cards = append(r.cards, c)
	return nil
}

func (r *recSender) cardCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cards)
}

func (r *recSender) lastTexts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

// fixedSource returns the same proposals (or error) on every fetch.
type fixedSource struct {
	mu    sync.Mutex
	props []governance.Proposal
	err   error
	calls int
	block chan struct{} // when set, FetchAll waits until it is closed
}

func (f *fixedSource) FetchAll(ctx context.Context, realmID, programID string) ([]governance.Proposal, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	props, err := f.props, f.err
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return props, err
}

func (f *fixedSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var testDest = kit.ChatTarget{ChatID: 42}

func TestPipelineNotifiesNewOnce(t *testing.T) {
	t.Parallel()
	src := &fixedSource{props: []governance.Proposal{
		{ID: "P1", Title: "one", State: "Voting"},
		{ID: "P2", Title: "two", State: "Draft"},
	}}
	store := newMemStore()
	out := &recSender{}
	p := NewPipeline(src, store, out, logx.Nop())

	res := p.Run(context.Background(), testDest, "realm", "prog")
	if res.Checked != 2 || res.Notified != 2 {
		t.Fatalf("first run = %+v, want 2/2", res)
	}
	if out.cardCount() != 2 {
		t.Fatalf("sent %d cards, want 2", out.cardCount())
	}
	texts := out.lastTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "2 new proposal(s)") {
		t.Fatalf("unexpected summary: %v", texts)
	}

	// Same data again: everything is known, nothing goes out.
	res = p.Run(context.Background(), testDest, "realm", "prog")
	if res.Checked != 2 || res.Notified != 0 {
		t.Fatalf("second run = %+v, want 2/0", res)
	}
	if out.cardCount() != 2 || len(out.lastTexts()) != 1 {
		t.Fatalf("second run must be silent, got %d cards %d texts", out.cardCount(), len(out.lastTexts()))
	}
}

func TestPipelineMarksOnlyAfterSend(t *testing.T) {
	t.Parallel()
	src := &fixedSource{props: []governance.Proposal{{ID: "P1", Title: "boom"}}}
	store := newMemStore()
	out := &recSender{failCardTitle: "boom"}
	p := NewPipeline(src, store, out, logx.Nop())

	res := p.Run(context.Background(), testDest, "realm", "prog")
	if res.Notified != 0 {
		t.Fatalf("notified = %d, want 0", res.Notified)
	}
	if known, _ := store.IsKnown(context.Background(), "P1"); known {
		t.Fatal("P1 marked known despite failed send")
	}
	texts := out.lastTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "error occurred") {
		t.Fatalf("expected one generic failure message, got %v", texts)
	}

	// Once the send path recovers the proposal goes out again.
	out.mu.Lock()
	out.failCardTitle = ""
	out.mu.Unlock()
	res = p.Run(context.Background(), testDest, "realm", "prog")
	if res.Notified != 1 {
		t.Fatalf("retry run notified = %d, want 1", res.Notified)
	}
}

func TestPipelineMarkFailureRepeatsNotification(t *testing.T) {
	t.Parallel()
	src := &fixedSource{props: []governance.Proposal{{ID: "P1", Title: "one"}}}
	store := newMemStore()
	store.failMark = errors.New("disk full")
	out := &recSender{}
	p := NewPipeline(src, store, out, logx.Nop())

	p.Run(context.Background(), testDest, "realm", "prog")
	if out.cardCount() != 1 {
		t.Fatalf("sent %d cards, want 1", out.cardCount())
	}

	// Mark failed, so the next cycle notifies again. At-least-once, by
	// construction: duplicates beat silent drops.
	store.mu.Lock()
	store.failMark = nil
	store.mu.Unlock()
	p.Run(context.Background(), testDest, "realm", "prog")
	if out.cardCount() != 2 {
		t.Fatalf("sent %d cards, want 2", out.cardCount())
	}
}

func TestPipelineEmptyResult(t *testing.T) {
	t.Parallel()
	src := &fixedSource{}
	out := &recSender{}
	p := NewPipeline(src, newMemStore(), out, logx.Nop())

	res := p.Run(context.Background(), testDest, "realm", "prog")
	if res.Checked != 0 || res.Notified != 0 {
		t.Fatalf("res = %+v, want zero", res)
	}
	texts := out.lastTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "No proposals found") {
		t.Fatalf("unexpected texts: %v", texts)
	}
	if out.cardCount() != 0 {
		t.Fatalf("no cards expected, got %d", out.cardCount())
	}
}

func TestPipelineFetchErrorReportsOnce(t *testing.T) {
	t.Parallel()
	src := &fixedSource{err: errors.New("upstream down")}
	out := &recSender{}
	p := NewPipeline(src, newMemStore(), out, logx.Nop())

	res := p.Run(context.Background(), testDest, "realm", "prog")
	if res.Checked != 0 {
		t.Fatalf("res = %+v, want zero", res)
	}
	texts := out.lastTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "error occurred") {
		t.Fatalf("expected single generic failure message, got %v", texts)
	}
}

func TestProposalCardFields(t *testing.T) {
	t.Parallel()
	c := proposalCard(governance.Proposal{
		ID:          "P1",
		Title:       "Raise quorum",
		Description: "body",
		State:       "Voting",
	})
	if c.Title != "Raise quorum" || c.Body != "body" {
		t.Fatalf("card = %+v", c)
	}
	if len(c.Fields) != 2 || c.Fields[0].Value != "Voting" || c.Fields[1].Value != "unavailable" {
		t.Fatalf("fields = %+v", c.Fields)
	}
}
