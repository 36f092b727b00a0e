package governance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	logx "realmbot/pkg/logx"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(ClientConfig{Endpoint: srv.URL, RatePerSec: 1000}, logx.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestClientGovernances(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/realms/my-realm/governances" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"address":"G1"},{"address":"G2"},{"address":""}]`))
	})

	got, err := c.Governances(context.Background(), "my-realm")
	if err != nil {
		t.Fatalf("Governances: %v", err)
	}
	if len(got) != 2 || got[0] != "G1" || got[1] != "G2" {
		t.Fatalf("unexpected governances: %v", got)
	}
}

func TestClientProposalsDecodesSentinel(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"address":"P1","governance":"G1","title":"T1","description":"D1","state":"Voting","voting_completed_at":null},
			{"address":"P2","governance":"G1","title":"T2","description":"D2","state":"Succeeded","voting_completed_at":1767225600}
		]`))
	})

	got, err := c.Proposals(context.Background(), "prog")
	if err != nil {
		t.Fatalf("Proposals: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d proposals, want 2", len(got))
	}
	if got[0].VotingEndsAt != nil {
		t.Fatalf("P1 should have no voting end, got %v", got[0].VotingEndsAt)
	}
	if got[0].VotingEnds() != "unavailable" {
		t.Fatalf("P1 VotingEnds = %q", got[0].VotingEnds())
	}
	if got[1].VotingEndsAt == nil || got[1].State != "Succeeded" {
		t.Fatalf("P2 decoded badly: %+v", got[1])
	}
}

func TestClientRateLimitSignal(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Proposals(context.Background(), "prog")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestClientServerErrorIsNotRateLimit(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Governances(context.Background(), "realm")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrRateLimited) {
		t.Fatalf("500 must not be classified as rate limit: %v", err)
	}
}
