package governance

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	logx "realmbot/pkg/logx"
)

type fakeUpstream struct {
	govs      []string
	props     []Proposal
	govErrs   []error // consumed per call; nil entry = success
	propErrs  []error
	govCalls  int
	propCalls int
}

func (f *fakeUpstream) Governances(ctx context.Context, realmID string) ([]string, error) {
	f.govCalls++
	if len(f.govErrs) > 0 {
		err := f.govErrs[0]
		f.govErrs = f.govErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.govs, nil
}

func (f *fakeUpstream) Proposals(ctx context.Context, programID string) ([]Proposal, error) {
	f.propCalls++
	if len(f.propErrs) > 0 {
		err := f.propErrs[0]
		f.propErrs = f.propErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.props, nil
}

func newTestFetcher(up Upstream) (*Fetcher, *[]time.Duration) {
	f := NewFetcher(up, logx.Nop())
	var slept []time.Duration
	f.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return f, &slept
}

func TestFetchAllRealmScoping(t *testing.T) {
	t.Parallel()
	up := &fakeUpstream{
		govs: []string{"G1", "G2"},
		props: []Proposal{
			{ID: "P1", Governance: "G1"},
			{ID: "P2", Governance: "G2"},
			{ID: "P3", Governance: "G3"},
		},
	}
	f, _ := newTestFetcher(up)

	got, err := f.FetchAll(context.Background(), "realm", "prog")
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d proposals, want 2", len(got))
	}
	// Order must follow the upstream proposal order.
	if got[0].ID != "P1" || got[1].ID != "P2" {
		t.Fatalf("unexpected order/content: %v, %v", got[0].ID, got[1].ID)
	}
}

func TestFetchAllBackoffSchedule(t *testing.T) {
	t.Parallel()
	rl := fmt.Errorf("get /x: %w", ErrRateLimited)
	up := &fakeUpstream{
		govErrs: []error{rl, rl, rl, rl, rl},
	}
	f, slept := newTestFetcher(up)

	got, err := f.FetchAll(context.Background(), "realm", "prog")
	if err != nil {
		t.Fatalf("FetchAll after exhaustion should not error, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result after exhaustion, got %d", len(got))
	}

	want := []time.Duration{
		500 * time.Millisecond,
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
	}
	if len(*slept) != len(want) {
		t.Fatalf("slept %d times, want %d (%v)", len(*slept), len(want), *slept)
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Fatalf("sleep[%d] = %v, want %v", i, (*slept)[i], d)
		}
	}
	if up.govCalls != 5 {
		t.Fatalf("govCalls = %d, want 5", up.govCalls)
	}
}

func TestFetchAllRecoversWithinRetries(t *testing.T) {
	t.Parallel()
	rl := fmt.Errorf("get /x: %w", ErrRateLimited)
	up := &fakeUpstream{
		govs:    []string{"G1"},
		props:   []Proposal{{ID: "P1", Governance: "G1"}},
		govErrs: []error{rl, rl, nil},
	}
	f, slept := newTestFetcher(up)

	got, err := f.FetchAll(context.Background(), "realm", "prog")
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(got) != 1 || got[0].ID != "P1" {
		t.Fatalf("unexpected result: %+v", got)
	}
	if len(*slept) != 2 {
		t.Fatalf("slept %d times, want 2", len(*slept))
	}
}

func TestFetchAllNonRateLimitAborts(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection refused")
	up := &fakeUpstream{
		govs:     []string{"G1"},
		propErrs: []error{boom},
	}
	f, slept := newTestFetcher(up)

	_, err := f.FetchAll(context.Background(), "realm", "prog")
	if !errors.Is(err, boom) {
		t.Fatalf("expected propagated error, got %v", err)
	}
	if len(*slept) != 0 {
		t.Fatalf("must not retry non-rate-limit errors, slept %v", *slept)
	}
	if up.propCalls != 1 {
		t.Fatalf("propCalls = %d, want 1", up.propCalls)
	}
}

func TestProposalVotingEndsSentinel(t *testing.T) {
	t.Parallel()
	p := Proposal{ID: "P1"}
	if got := p.VotingEnds(); got != "unavailable" {
		t.Fatalf("VotingEnds = %q, want unavailable", got)
	}
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	p.VotingEndsAt = &at
	if got := p.VotingEnds(); got != "2026-03-14 09:30 UTC" {
		t.Fatalf("VotingEnds = %q", got)
	}
}
