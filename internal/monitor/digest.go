package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	kit "realmbot/internal/transport"
	logx "realmbot/pkg/logx"
)

// Digest posts a daily health summary to the monitored chat: scheduler state,
// seen-set size, and the outcome of the last cycle. It rides the same send
// path as the notifications, so a silent destination means a broken pipeline,
// not a quiet realm.
type Digest struct {
	mon *Monitor
	out Sender
	log logx.Logger

	c  *cron.Cron
	id cron.EntryID
}

// NewDigest schedules the summary with a standard 5-field cron spec,
// e.g. "0 9 * * *" for 09:00 every day. An empty spec disables the digest.
func NewDigest(spec string, mon *Monitor, out Sender, log logx.Logger) (*Digest, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Digest{mon: mon, out: out, log: log}
	if spec == "" {
		return d, nil
	}

	d.c = cron.New()
	id, err := d.c.AddFunc(spec, d.post)
	if err != nil {
		return nil, fmt.Errorf("digest schedule %q: %w", spec, err)
	}
	d.id = id
	return d, nil
}

func (d *Digest) Start() {
	if d.c == nil {
		return
	}
	d.c.Start()
	d.log.Info("digest scheduled", logx.Time("next", d.c.Entry(d.id).Next))
}

func (d *Digest) Stop() {
	if d.c == nil {
		return
	}
	<-d.c.Stop().Done()
}

func (d *Digest) post() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st := d.mon.Status()
	if !st.Config.Complete() {
		d.log.Debug("digest skipped, monitor not configured")
		return
	}

	known, err := d.mon.store.KnownCount(ctx)
	if err != nil {
		d.log.Warn("digest seen-set count failed", logx.Err(err))
		known = -1
	}

	lastRun := "never"
	if !st.LastRunAt.IsZero() {
		lastRun = st.LastRunAt.UTC().Format("2006-01-02 15:04 UTC")
	}
	knownStr := "unknown"
	if known >= 0 {
		knownStr = fmt.Sprintf("%d", known)
	}

	card := kit.Card{
		Title:    "Daily monitor digest",
		Severity: kit.SeverityInfo,
		Fields: []kit.CardField{
			{Name: "Realm", Value: st.Config.RealmID},
			{Name: "State", Value: string(st.State)},
			{Name: "Known proposals", Value: knownStr},
			{Name: "Last run", Value: lastRun},
			{Name: "Last cycle", Value: fmt.Sprintf("%d checked, %d notified", st.LastResult.Checked, st.LastResult.Notified)},
		},
	}
	dest := kit.ChatTarget{ChatID: st.Config.ChatID, ThreadID: st.Config.ThreadID}
	if err := d.out.Card(ctx, dest, card); err != nil {
		d.log.Warn("digest send failed", logx.Err(err))
	}
}
