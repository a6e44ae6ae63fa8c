package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pubg-account-watch/internal/assembler"
	"pubg-account-watch/internal/pricing"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingNotifier) Notify(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestBusDeliversEvents(t *testing.T) {
	rec := &recordingNotifier{}
	bus := NewBus(8, []Notifier{rec}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = bus.Run(ctx)
		close(done)
	}()

	bus.Publish(Event{Kind: KindRareItemFound})
	bus.Publish(Event{Kind: KindGoodPrice})

	deadline := time.After(2 * time.Second)
	for rec.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("事件应在超时前送达, 已收到 %d", rec.count())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestBusPublishNeverBlocks(t *testing.T) {
	bus := NewBus(1, nil, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(Event{Kind: KindGoodPrice})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish 在缓冲满时不应阻塞")
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	est := pricing.Estimate{Point: decimal.NewFromInt(192), Low: decimal.NewFromInt(180), High: decimal.NewFromInt(205), Reason: pricing.ReasonOK}
	ev := Event{
		Kind:     KindGoodPrice,
		At:       time.Now(),
		Profile:  &assembler.AccountProfile{ID: "p1", SourceChatID: 100, MessageID: 7},
		Estimate: &est,
	}

	if err := notifier.Notify(context.Background(), ev); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "192.00") {
		t.Fatalf("消息应包含估价: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), Event{Kind: KindRareItemFound, At: time.Now()}); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestRenderRareItemMessage(t *testing.T) {
	profile := &assembler.AccountProfile{SourceChatID: 100, MessageID: 42}
	msg := renderMessage(Event{
		Kind:    KindRareItemFound,
		At:      time.Unix(0, 0),
		Profile: profile,
		Items: []assembler.ProfileItem{
			{Name: "AWM-Glacier", RarityTier: 5, Confidence: 0.92},
		},
	})
	if !strings.Contains(msg, "AWM-Glacier") || !strings.Contains(msg, "tier 5") {
		t.Fatalf("消息内容不完整: %q", msg)
	}
}
