package governance

import (
	"context"
	"errors"
	"time"

	logx "realmbot/pkg/logx"
)

// Upstream is the read API the Fetcher depends on. *Client implements it.
type Upstream interface {
	Governances(ctx context.Context, realmID string) ([]string, error)
	Proposals(ctx context.Context, programID string) ([]Proposal, error)
}

const (
	fetchMaxAttempts = 5
	fetchBackoffBase = 500 * time.Millisecond
)

// Fetcher retrieves the full proposal set for a realm, retrying rate-limited
// attempts with exponential backoff (500ms doubling, 5 attempts). Exhausted
// retries yield an empty result, not an error: the scheduler treats that as
// "no new data this cycle". Any non-rate-limit failure aborts immediately.
type Fetcher struct {
	up  Upstream
	log logx.Logger

	// sleep is swapped out by tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewFetcher(up Upstream, log logx.Logger) *Fetcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Fetcher{up: up, log: log, sleep: sleepCtx}
}

// FetchAll returns all proposals under programID whose owning governance
// account belongs to realmID. The upstream indexes proposals by program only,
// so the realm scoping is applied here after enumerating the realm's
// governance accounts. Order is the upstream proposal order, filtered.
func (f *Fetcher) FetchAll(ctx context.Context, realmID, programID string) ([]Proposal, error) {
	backoff := fetchBackoffBase
	for attempt := 1; attempt <= fetchMaxAttempts; attempt++ {
		props, err := f.fetchOnce(ctx, realmID, programID)
		if err == nil {
			return props, nil
		}
		if !errors.Is(err, ErrRateLimited) {
			return nil, err
		}

		f.log.Warn("upstream rate limited",
			logx.Int("attempt", attempt),
			logx.Int("max_attempts", fetchMaxAttempts),
			logx.Duration("backoff", backoff),
		)
		if serr := f.sleep(ctx, backoff); serr != nil {
			return nil, serr
		}
		backoff *= 2
	}

	// Not fatal: the next cycle retries from scratch.
	f.log.Error("rate limit retries exhausted; treating cycle as empty",
		logx.String("realm", realmID),
		logx.String("program", programID),
	)
	return []Proposal{}, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, realmID, programID string) ([]Proposal, error) {
	govs, err := f.up.Governances(ctx, realmID)
	if err != nil {
		return nil, err
	}
	inRealm := make(map[string]struct{}, len(govs))
	for _, g := range govs {
		inRealm[g] = struct{}{}
	}

	all, err := f.up.Proposals(ctx, programID)
	if err != nil {
		return nil, err
	}

	out := make([]Proposal, 0, len(all))
	for _, p := range all {
		if _, ok := inRealm[p.Governance]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
