package rpcserver

import (
	"encoding/json"
	"testing"
	"time"
)

func TestHubBroadcastsToUnsubscribedClients(t *testing.T) {
	hub := newWSHub()
	go hub.run()

	client := &wsClient{send: make(chan []byte, 1), subscriptions: make(map[string]bool), hub: hub}
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast("match-1", map[string]string{"status": "settled"})

	select {
	case msg := <-client.send:
		var event StatusEvent
		if err := json.Unmarshal(msg, &event); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if event.MatchID != "match-1" {
			t.Errorf("MatchID = %q, want match-1", event.MatchID)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast to reach an unsubscribed client")
	}
}

func TestHubRespectsSubscriptionFilter(t *testing.T) {
	hub := newWSHub()
	go hub.run()

	client := &wsClient{send: make(chan []byte, 1), subscriptions: map[string]bool{"match-1": true}, hub: hub}
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast("match-2", map[string]string{"status": "settled"})

	select {
	case <-client.send:
		t.Fatal("client subscribed to match-1 should not receive a match-2 event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandleSubscriptionAddsAndRemoves(t *testing.T) {
	client := &wsClient{subscriptions: make(map[string]bool)}

	client.handleSubscription(&wsSubscription{Action: "subscribe", MatchIDs: []string{"a", "b"}})
	if !client.subscriptions["a"] || !client.subscriptions["b"] {
		t.Fatal("expected both match ids to be subscribed")
	}

	client.handleSubscription(&wsSubscription{Action: "unsubscribe", MatchIDs: []string{"a"}})
	if client.subscriptions["a"] {
		t.Error("expected a to be unsubscribed")
	}
	if !client.subscriptions["b"] {
		t.Error("expected b to remain subscribed")
	}
}
