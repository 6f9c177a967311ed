package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestClient(h *Hub) *Client {
	return &Client{
		id:     "test-client",
		hub:    h,
		send:   make(chan []byte, 8),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestHubBroadcastsPulseToDateSubscribers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(logger)
	go hub.Run()
	defer hub.Stop()

	subscribed := newTestClient(hub)
	other := newTestClient(hub)
	hub.Register(subscribed)
	hub.Register(other)
	hub.Subscribe(subscribed, "2026-03-14")
	hub.Subscribe(other, "2026-03-15")

	waitFor(t, func() bool { return hub.GetSubscriberCount("2026-03-14") == 1 })

	hub.BroadcastPulse("2026-03-14", 10, 4)

	select {
	case raw := <-subscribed.send:
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("failed to decode broadcast: %v", err)
		}
		if msg.Type != MessageTypePulseUpdate || msg.Date != "2026-03-14" {
			t.Errorf("unexpected message: %+v", msg)
		}
		data, _ := json.Marshal(msg.Data)
		var pulse PulseUpdate
		if err := json.Unmarshal(data, &pulse); err != nil {
			t.Fatalf("failed to decode pulse: %v", err)
		}
		if pulse.PlayersFinished != 10 || pulse.GamesWon != 4 {
			t.Errorf("unexpected counters: %+v", pulse)
		}
		if pulse.WinRate != 0.4 {
			t.Errorf("expected win rate 0.4, got %v", pulse.WinRate)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never received the pulse")
	}

	select {
	case raw := <-other.send:
		t.Errorf("subscriber of a different date received %s", raw)
	default:
	}
}

func TestSubscribeRejectsInvalidDate(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(logger)
	client := newTestClient(hub)

	client.handleMessage(&ClientMessage{Type: MessageTypeSubscribe, Date: "not-a-date"})

	select {
	case raw := <-client.send:
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if msg.Type != MessageTypeError {
			t.Errorf("expected error message, got %+v", msg)
		}
	default:
		t.Fatal("expected an error response to a bad subscribe")
	}

	if len(hub.subscribe) != 0 {
		t.Error("bad subscribe must not reach the hub")
	}
}

func TestValidDateKey(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"2026-03-14", true},
		{"2026-3-14", false},
		{"", false},
		{"not-a-date", false},
		{"2026-13-40", false},
	}
	for _, tt := range tests {
		if got := validDateKey(tt.input); got != tt.want {
			t.Errorf("validDateKey(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
