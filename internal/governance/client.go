package governance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "realmbot/pkg/logx"
)

// Client reads proposal records from a governance indexer (REST + JSON).
//
// The API indexes proposals by program, not by realm; realm scoping happens
// client-side in the Fetcher.
type Client struct {
	base string
	http *http.Client
	lim  *rate.Limiter
	log  logx.Logger
}

type ClientConfig struct {
	Endpoint       string
	RequestTimeout time.Duration // per-request bound; 0 means 15s
	RatePerSec     int           // client-side pacing; 0 means 5 req/s
}

func NewClient(cfg ClientConfig, log logx.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if base == "" {
		return nil, errors.New("upstream endpoint is empty")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("upstream endpoint: %w", err)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		base: base,
		http: &http.Client{Timeout: timeout},
		lim:  rate.NewLimiter(rate.Limit(rps), rps),
		log:  log,
	}, nil
}

// Governances lists the governance accounts under a realm.
func (c *Client) Governances(ctx context.Context, realmID string) ([]string, error) {
	var out []struct {
		Address string `json:"address"`
	}
	p := "/v1/realms/" + url.PathEscape(realmID) + "/governances"
	if err := c.getJSON(ctx, p, &out); err != nil {
		return nil, err
	}
	addrs := make([]string, 0, len(out))
	for _, g := range out {
		if g.Address != "" {
			addrs = append(addrs, g.Address)
		}
	}
	return addrs, nil
}

type proposalWire struct {
	Address           string `json:"address"`
	Governance        string `json:"governance"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	State             string `json:"state"`
	VotingCompletedAt *int64 `json:"voting_completed_at"` // unix seconds; null while voting is open
}

// Proposals lists all proposal records owned by a program.
func (c *Client) Proposals(ctx context.Context, programID string) ([]Proposal, error) {
	var out []proposalWire
	p := "/v1/programs/" + url.PathEscape(programID) + "/proposals"
	if err := c.getJSON(ctx, p, &out); err != nil {
		return nil, err
	}
	props := make([]Proposal, 0, len(out))
	for _, w := range out {
		if w.Address == "" {
			continue
		}
		pr := Proposal{
			ID:          w.Address,
			Governance:  w.Governance,
			Title:       w.Title,
			Description: w.Description,
			State:       w.State,
		}
		if w.VotingCompletedAt != nil {
			t := time.Unix(*w.VotingCompletedAt, 0)
			pr.VotingEndsAt = &t
		}
		props = append(props, pr)
	}
	return props, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if err := c.lim.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upstream get %s: %w", path, err)
	}
	defer resp.Body.Close()

	c.log.Trace("upstream request", logx.String("path", path), logx.Int("status", resp.StatusCode), logx.Duration("dur", time.Since(start)))

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("get %s: %w", path, ErrRateLimited)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("get %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("get %s: decode: %w", path, err)
	}
	return nil
}
