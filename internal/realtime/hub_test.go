package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chainguardian-io/chainguardian/internal/pipeline"
)

func txEvent(from, to string, risk float64) *Event {
	return &Event{
		Type:      EventTransaction,
		Timestamp: time.Now(),
		Data: &pipeline.TransactionRecord{
			TxHash:    "0xabc",
			From:      from,
			To:        to,
			RiskScore: risk,
		},
	}
}

func alertEvent(flagged string, risk float64, severity pipeline.Severity) *Event {
	return &Event{
		Type:      EventAlert,
		Timestamp: time.Now(),
		Data: &pipeline.AlertRecord{
			SigHash:        "deadbeef",
			FlaggedAddress: flagged,
			RiskScore:      risk,
			Severity:       severity,
		},
	}
}

func clientWith(sub Subscription) *Client {
	return &Client{sub: sub}
}

func TestMatchesDefaultSubscription(t *testing.T) {
	c := clientWith(Subscription{AllEvents: true})

	if !c.matches(txEvent("0xa", "0xb", 0.1)) {
		t.Error("default subscription rejected a transaction event")
	}
	if !c.matches(alertEvent("0xa", 0.9, pipeline.SeverityHigh)) {
		t.Error("default subscription rejected an alert event")
	}
}

func TestMatchesEventTypeFilter(t *testing.T) {
	c := clientWith(Subscription{EventTypes: []EventType{EventAlert}})

	if c.matches(txEvent("0xa", "0xb", 0.1)) {
		t.Error("alert-only subscription received a transaction event")
	}
	if !c.matches(alertEvent("0xa", 0.9, pipeline.SeverityHigh)) {
		t.Error("alert-only subscription rejected an alert event")
	}
}

func TestMatchesMinRiskScore(t *testing.T) {
	c := clientWith(Subscription{AllEvents: true, MinRiskScore: 0.5})

	if c.matches(txEvent("0xa", "0xb", 0.2)) {
		t.Error("low-risk transaction passed a 0.5 risk floor")
	}
	if !c.matches(txEvent("0xa", "0xb", 0.8)) {
		t.Error("high-risk transaction rejected by a 0.5 risk floor")
	}
}

func TestMatchesMinSeverity(t *testing.T) {
	c := clientWith(Subscription{AllEvents: true, MinSeverity: int(pipeline.SeverityHigh)})

	if c.matches(alertEvent("0xa", 0.75, pipeline.SeverityElevated)) {
		t.Error("elevated alert passed a high-severity floor")
	}
	if !c.matches(alertEvent("0xa", 0.9, pipeline.SeverityHigh)) {
		t.Error("high alert rejected by a high-severity floor")
	}
}

func TestMatchesAddressWatch(t *testing.T) {
	c := clientWith(Subscription{AllEvents: true, Addresses: []string{"0xAbCd"}})

	if !c.matches(txEvent("0xabcd", "0xother", 0.1)) {
		t.Error("watched sender not matched case-insensitively")
	}
	if !c.matches(txEvent("0xother", "0xABCD", 0.1)) {
		t.Error("watched recipient not matched case-insensitively")
	}
	if c.matches(txEvent("0xother", "0xstranger", 0.1)) {
		t.Error("unwatched transaction passed an address filter")
	}

	if !c.matches(alertEvent("0xabcd", 0.9, pipeline.SeverityHigh)) {
		t.Error("watched flagged address not matched")
	}
	if c.matches(alertEvent("0xother", 0.9, pipeline.SeverityHigh)) {
		t.Error("unwatched alert passed an address filter")
	}
}

func TestMatchesAddress(t *testing.T) {
	if !matchesAddress([]string{"0xAA", "0xBB"}, "0xcc", "0xbb") {
		t.Error("matchesAddress missed a case-insensitive hit")
	}
	if matchesAddress([]string{"0xaa"}, "0xbb", "0xcc") {
		t.Error("matchesAddress reported a hit with no overlap")
	}
	if matchesAddress(nil, "0xaa") {
		t.Error("matchesAddress reported a hit with an empty watch list")
	}
}

func TestUpgradeRefusedAfterShutdown(t *testing.T) {
	hub := NewHub(slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Run(ctx) // returns immediately and closes done

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err == nil {
		t.Fatal("dial succeeded against a stopped hub")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("handshake response = %+v, want 503", resp)
	}
}

func TestHubStreamsEvents(t *testing.T) {
	hub := NewHub(slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Registration happens after the handshake completes; wait for the
	// hub to see the client before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for hub.Stats()["connectedClients"].(int) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.TransactionProcessed(&pipeline.TransactionRecord{TxHash: "0xabc", RiskScore: 0.2})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var event struct {
		Type EventType `json:"type"`
		Data struct {
			TxHash string `json:"txHash"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Type != EventTransaction || event.Data.TxHash != "0xabc" {
		t.Errorf("event = %+v", event)
	}
}
