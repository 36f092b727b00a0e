package app

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"realmbot/internal/monitor"
	kit "realmbot/internal/transport"
	"realmbot/internal/transport/telegram/router"
	logx "realmbot/pkg/logx"
)

func (a *App) buildCommands() []router.Command {
	return []router.Command{
		{
			Name:        "watch",
			Description: "set the realm and governance program to monitor",
			Usage:       "/watch <realm_id> <program_id>",
			Access:      router.AccessOwnerOnly,
			Timeout:     10 * time.Second,
			Handle:      a.cmdWatch,
		},
		{
			Name:        "channel",
			Description: "set the notification chat (defaults to this one)",
			Usage:       "/channel [chat_id] [thread_id]",
			Access:      router.AccessOwnerOnly,
			Timeout:     10 * time.Second,
			Handle:      a.cmdChannel,
		},
		{
			Name:        "status",
			Description: "show monitor status",
			Usage:       "/status",
			Access:      router.AccessEveryone,
			Timeout:     10 * time.Second,
			Handle:      a.cmdStatus,
		},
		{
			Name:        "check",
			Description: "run a check cycle now",
			Usage:       "/check",
			Access:      router.AccessOwnerOnly,
			Timeout:     5 * time.Minute,
			Handle:      a.cmdCheck,
		},
		{
			Name:        "reset",
			Description: "forget the watch target and all seen proposals",
			Usage:       "/reset",
			Access:      router.AccessOwnerOnly,
			Timeout:     10 * time.Second,
			Handle:      a.cmdReset,
		},
	}
}

func (a *App) cmdWatch(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 2 {
		return replyText(ctx, req, "usage: /watch <realm_id> <program_id>")
	}
	realmID, programID := strings.TrimSpace(req.Args[0]), strings.TrimSpace(req.Args[1])
	if realmID == "" || programID == "" {
		return replyText(ctx, req, "usage: /watch <realm_id> <program_id>")
	}

	if err := a.mon.SetTarget(ctx, realmID, programID); err != nil {
		req.Logger.Warn("watch target save failed", logx.Err(err))
		return replyText(ctx, req, "failed to save the watch target, try again")
	}

	st := a.mon.Status()
	if !st.Config.Complete() {
		return replyText(ctx, req, "watch target saved. Set a destination with /channel to start monitoring.")
	}
	return replyText(ctx, req, "watch target saved, monitoring started.")
}

func (a *App) cmdChannel(ctx context.Context, req *router.Request) error {
	chatID := req.Chat.ChatID
	threadID := req.Chat.ThreadID
	if len(req.Args) > 0 {
		id, err := strconv.ParseInt(req.Args[0], 10, 64)
		if err != nil {
			return replyText(ctx, req, "usage: /channel [chat_id] [thread_id]")
		}
		chatID = id
		threadID = 0
	}
	if len(req.Args) > 1 {
		tid, err := strconv.Atoi(req.Args[1])
		if err != nil {
			return replyText(ctx, req, "usage: /channel [chat_id] [thread_id]")
		}
		threadID = tid
	}

	if err := a.mon.SetDestination(ctx, chatID, threadID); err != nil {
		req.Logger.Warn("destination save failed", logx.Err(err))
		return replyText(ctx, req, "failed to save the destination, try again")
	}

	st := a.mon.Status()
	if !st.Config.Complete() {
		return replyText(ctx, req, fmt.Sprintf("destination set to %d. Set a target with /watch to start monitoring.", chatID))
	}
	return replyText(ctx, req, fmt.Sprintf("destination set to %d, monitoring started.", chatID))
}

func (a *App) cmdStatus(ctx context.Context, req *router.Request) error {
	st := a.mon.Status()

	lines := []string{"🛰 <b>Monitor status</b>", "State: <code>" + html.EscapeString(string(st.State)) + "</code>"}
	if st.Config.RealmID != "" {
		lines = append(lines,
			"Realm: <code>"+html.EscapeString(st.Config.RealmID)+"</code>",
			"Program: <code>"+html.EscapeString(st.Config.ProgramID)+"</code>",
		)
	} else {
		lines = append(lines, "Realm: <i>not set</i> (use /watch)")
	}
	if st.Config.ChatID != 0 {
		lines = append(lines, fmt.Sprintf("Destination: <code>%d</code>", st.Config.ChatID))
	} else {
		lines = append(lines, "Destination: <i>not set</i> (use /channel)")
	}
	lines = append(lines, "Interval: <code>"+st.Interval.String()+"</code>")

	if !st.LastRunAt.IsZero() {
		lines = append(lines, fmt.Sprintf("Last run: %s (%d checked, %d notified)",
			st.LastRunAt.UTC().Format("2006-01-02 15:04 UTC"), st.LastResult.Checked, st.LastResult.Notified))
	}
	if !st.NextRunAt.IsZero() {
		lines = append(lines, "Next run: "+st.NextRunAt.UTC().Format("2006-01-02 15:04 UTC"))
	}
	if known, err := a.store.KnownCount(ctx); err == nil {
		lines = append(lines, fmt.Sprintf("Known proposals: %d", known))
	}

	return replyHTML(ctx, req, strings.Join(lines, "\n"))
}

func (a *App) cmdCheck(ctx context.Context, req *router.Request) error {
	res, err := a.mon.TriggerNow(ctx)
	switch {
	case errors.Is(err, monitor.ErrBusy):
		return replyText(ctx, req, "a check is already running")
	case errors.Is(err, monitor.ErrNotConfigured):
		return replyText(ctx, req, "not configured yet; use /watch and /channel first")
	case err != nil:
		return err
	}
	return replyText(ctx, req, fmt.Sprintf("check done: %d checked, %d new", res.Checked, res.Notified))
}

func (a *App) cmdReset(ctx context.Context, req *router.Request) error {
	if err := a.mon.Reset(ctx); err != nil {
		req.Logger.Warn("reset failed", logx.Err(err))
		return replyText(ctx, req, "reset failed, try again")
	}
	return replyText(ctx, req, "monitor reset: target and seen proposals cleared.")
}

func replyText(ctx context.Context, req *router.Request, text string) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, text, nil)
	return err
}

func replyHTML(ctx context.Context, req *router.Request, text string) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}
