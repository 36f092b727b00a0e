package monitor

import (
	"context"
	"fmt"

	"realmbot/internal/governance"
	"realmbot/internal/storage"
	kit "realmbot/internal/transport"
	logx "realmbot/pkg/logx"
)

// Sender is the destination send path. *notify.Service implements it.
type Sender interface {
	Text(ctx context.Context, to kit.ChatTarget, text string) error
	Card(ctx context.Context, to kit.ChatTarget, c kit.Card) error
}

// ProposalSource yields the full proposal set for a target.
// *governance.Fetcher implements it.
type ProposalSource interface {
	FetchAll(ctx context.Context, realmID, programID string) ([]governance.Proposal, error)
}

// RunResult summarizes one fetch/dedup/notify cycle.
type RunResult struct {
	Checked  int
	Notified int
}

// Pipeline diffs fetched proposals against the seen-set and notifies each new
// one. An id is marked known only after its notification was dispatched, so a
// crash between the two repeats the notification next cycle instead of
// silently dropping it.
type Pipeline struct {
	src   ProposalSource
	store storage.Store
	out   Sender
	log   logx.Logger
}

func NewPipeline(src ProposalSource, store storage.Store, out Sender, log logx.Logger) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pipeline{src: src, store: store, out: out, log: log}
}

// Run executes one cycle. Failures never propagate: they are logged and
// reported to the destination as a single generic message, so the scheduler's
// timer chain keeps going no matter what happened inside the cycle.
func (p *Pipeline) Run(ctx context.Context, dest kit.ChatTarget, realmID, programID string) RunResult {
	res, err := p.run(ctx, dest, realmID, programID)
	if err != nil {
		p.log.Error("cycle failed",
			logx.String("realm", realmID),
			logx.String("program", programID),
			logx.Int("checked", res.Checked),
			logx.Int("notified", res.Notified),
			logx.Err(err),
		)
		_ = p.out.Text(ctx, dest, "An error occurred while checking proposals. Will retry next cycle.")
	}
	return res
}

func (p *Pipeline) run(ctx context.Context, dest kit.ChatTarget, realmID, programID string) (RunResult, error) {
	var res RunResult

	props, err := p.src.FetchAll(ctx, realmID, programID)
	if err != nil {
		return res, fmt.Errorf("fetch: %w", err)
	}

	if len(props) == 0 {
		// Distinct from a failed fetch: the upstream answered and the realm
		// simply has nothing (or retries were exhausted upstream).
		p.log.Info("no proposals found", logx.String("realm", realmID), logx.String("program", programID))
		if err := p.out.Text(ctx, dest, "No proposals found for the configured realm."); err != nil {
			return res, fmt.Errorf("notify empty: %w", err)
		}
		return res, nil
	}

	res.Checked = len(props)
	for _, pr := range props {
		known, err := p.store.IsKnown(ctx, pr.ID)
		if err != nil {
			return res, fmt.Errorf("storage read %s: %w", pr.ID, err)
		}
		if known {
			continue
		}

		if err := p.out.Card(ctx, dest, proposalCard(pr)); err != nil {
			return res, fmt.Errorf("notify %s: %w", pr.ID, err)
		}
		// Mark only after the send: at-least-once, never skip-silently.
		if err := p.store.MarkKnown(ctx, pr.ID); err != nil {
			return res, fmt.Errorf("storage write %s: %w", pr.ID, err)
		}
		res.Notified++
		p.log.Info("new proposal notified", logx.String("id", pr.ID), logx.String("state", pr.State))
	}

	if res.Notified > 0 {
		msg := fmt.Sprintf("%d new proposal(s) found.", res.Notified)
		if err := p.out.Text(ctx, dest, msg); err != nil {
			return res, fmt.Errorf("notify summary: %w", err)
		}
	}
	return res, nil
}

func proposalCard(pr governance.Proposal) kit.Card {
	return kit.Card{
		Title:    pr.Title,
		Body:     pr.Description,
		Severity: kit.SeverityGood,
		Fields: []kit.CardField{
			{Name: "State", Value: pr.State},
			{Name: "Voting ends", Value: pr.VotingEnds()},
		},
	}
}
