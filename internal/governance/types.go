package governance

import (
	"errors"
	"time"
)

// ErrRateLimited marks a "too many requests" signal from the upstream read
// API. It is the only error class the Fetcher retries.
var ErrRateLimited = errors.New("upstream rate limited")

// Proposal is a single governance decision item. Immutable once fetched;
// identity is ID.
type Proposal struct {
	ID          string
	Governance  string // owning governance account
	Title       string
	Description string
	State       string // label derived from the record's tag, not a numeric code

	// VotingEndsAt is nil when the record carries no voting-completion
	// timestamp (vote still open, or the field was never recorded).
	VotingEndsAt *time.Time
}

// VotingEnds renders the voting-completion time, with a sentinel when the
// upstream record has none.
func (p Proposal) VotingEnds() string {
	if p.VotingEndsAt == nil {
		return "unavailable"
	}
	return p.VotingEndsAt.UTC().Format("2006-01-02 15:04 UTC")
}
