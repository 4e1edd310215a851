package natsbus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mtzanidakis/erevna/internal/config"
	"github.com/nats-io/nats.go"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	bus, err := New(config.NATSConfig{
		Port: 0, // Random port
	})
	if err != nil {
		t.Fatalf("failed to create bus: %v", err)
	}
	t.Cleanup(bus.Close)
	return bus
}

func TestBusStartStop(t *testing.T) {
	bus := newTestBus(t)
	if bus.ClientURL() == "" {
		t.Fatal("expected non-empty client URL")
	}
}

func TestPubSub(t *testing.T) {
	bus := newTestBus(t)

	client, err := NewClient(bus)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	received := make(chan string, 1)
	_, err = client.Subscribe("test.topic", func(msg *nats.Msg) {
		received <- string(msg.Data)
	})
	if err != nil {
		t.Fatalf("subscribe error: %v", err)
	}

	if err := client.Publish("test.topic", []byte("hello")); err != nil {
		t.Fatalf("publish error: %v", err)
	}
	client.Flush()

	select {
	case data := <-received:
		if data != "hello" {
			t.Errorf("expected 'hello', got '%s'", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishRunEventFansOut(t *testing.T) {
	bus := newTestBus(t)

	client, err := NewClient(bus)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	broadcast := make(chan []byte, 1)
	perRun := make(chan []byte, 1)
	if _, err := client.Subscribe(TopicEventsAnyRun, func(msg *nats.Msg) {
		broadcast <- msg.Data
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Subscribe(TopicRunEvents("r1"), func(msg *nats.Msg) {
		perRun <- msg.Data
	}); err != nil {
		t.Fatal(err)
	}

	client.PublishRunEvent("r1", "run_started", map[string]any{"topic": "solar"})
	client.Flush()

	for name, ch := range map[string]chan []byte{"broadcast": broadcast, "per-run": perRun} {
		select {
		case data := <-ch:
			var event map[string]any
			if err := json.Unmarshal(data, &event); err != nil {
				t.Fatalf("%s: bad json: %v", name, err)
			}
			if event["type"] != "run_started" || event["run_id"] != "r1" {
				t.Errorf("%s event = %v", name, event)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for %s event", name)
		}
	}
}

func TestTopicNames(t *testing.T) {
	if got := TopicRunEvents("r1"); got != "run.r1.events" {
		t.Errorf("expected run.r1.events, got %s", got)
	}
	if got := TopicEventsRun("run_completed"); got != "events.run.run_completed" {
		t.Errorf("expected events.run.run_completed, got %s", got)
	}
}
