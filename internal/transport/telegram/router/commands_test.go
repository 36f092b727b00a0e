package router

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	kit "realmbot/internal/transport"
	logx "realmbot/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return kit.MessageRef{}, nil
}

func (f *fakeAdapter) SendCard(ctx context.Context, to kit.ChatTarget, c kit.Card) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}

func (f *fakeAdapter) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func msgUpdate(fromID int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ChatID: 100,
		FromID: fromID,
		Text:   text,
	}}
}

func runDispatch(t *testing.T, m *CommandManager, ups ...kit.Update) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan kit.Update, len(ups))
	for _, u := range ups {
		ch <- u
	}
	close(ch)
	done := make(chan struct{})
	go func() {
		_ = m.DispatchLoop(ctx, ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("dispatch loop did not drain")
	}
	cancel()
}

func TestDispatchRunsHandlerWithArgs(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	m := NewCommandManager(logx.Nop(), ad, []int64{7})

	var mu sync.Mutex
	var gotArgs []string
	m.SetRegistry([]Command{{
		Name:  "watch",
		Usage: "/watch <realm> <program>",
		Handle: func(ctx context.Context, req *Request) error {
			mu.Lock()
			gotArgs = append([]string(nil), req.Args...)
			mu.Unlock()
			return nil
		},
	}})

	runDispatch(t, m, msgUpdate(1, "/watch@realmbot realm1 prog1"))

	mu.Lock()
	defer mu.Unlock()
	if len(gotArgs) != 2 || gotArgs[0] != "realm1" || gotArgs[1] != "prog1" {
		t.Fatalf("args = %v", gotArgs)
	}
}

func TestDispatchOwnerGate(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	m := NewCommandManager(logx.Nop(), ad, []int64{7})

	called := false
	m.SetRegistry([]Command{{
		Name:   "reset",
		Access: AccessOwnerOnly,
		Handle: func(ctx context.Context, req *Request) error {
			called = true
			return nil
		},
	}})

	runDispatch(t, m, msgUpdate(1, "/reset"))
	if called {
		t.Fatal("non-owner reached owner-only handler")
	}
	sent := ad.sent()
	if len(sent) != 1 || sent[0] != "unauthorized" {
		t.Fatalf("sent = %v", sent)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	m := NewCommandManager(logx.Nop(), ad, nil)
	m.SetRegistry(nil)

	runDispatch(t, m, msgUpdate(1, "/bogus"))
	sent := ad.sent()
	if len(sent) != 1 || sent[0] != "unknown command, try /help" {
		t.Fatalf("sent = %v", sent)
	}
}

func TestDispatchIgnoresPlainText(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	m := NewCommandManager(logx.Nop(), ad, nil)
	m.SetRegistry(nil)

	runDispatch(t, m, msgUpdate(1, "hello there"))
	if len(ad.sent()) != 0 {
		t.Fatalf("sent = %v", ad.sent())
	}
}

func TestHelpListsCommands(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	m := NewCommandManager(logx.Nop(), ad, []int64{7})
	m.SetRegistry([]Command{{
		Name:        "status",
		Description: "show monitor status",
		Handle:      func(ctx context.Context, req *Request) error { return nil },
	}})

	runDispatch(t, m, msgUpdate(1, "/help"))
	sent := ad.sent()
	if len(sent) != 1 {
		t.Fatalf("sent = %v", sent)
	}
	for _, want := range []string{"/status", "show monitor status", "/help"} {
		if !strings.Contains(sent[0], want) {
			t.Fatalf("help text missing %q:\n%s", want, sent[0])
		}
	}
}
