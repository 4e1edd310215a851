package natsbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

type Client struct {
	conn *nats.Conn
}

func NewClient(bus *Bus) (*Client, error) {
	conn, err := nats.Connect(bus.ClientURL())
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Client{conn: conn}, nil
}

func NewClientFromURL(url string) (*Client, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Publish(topic string, data []byte) error {
	return c.conn.Publish(topic, data)
}

func (c *Client) PublishJSON(topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return c.conn.Publish(topic, data)
}

// PublishRunEvent fans one run lifecycle event out to the broadcast subject
// and, when the run id is known, to the per-run subject. Failures are
// swallowed: events are advisory and must never fail a run.
func (c *Client) PublishRunEvent(runID, kind string, payload map[string]any) {
	event := map[string]any{
		"type":      kind,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"run_id":    runID,
		"data":      payload,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	_ = c.conn.Publish(TopicEventsRun(kind), data)
	if runID != "" {
		_ = c.conn.Publish(TopicRunEvents(runID), data)
	}
}

func (c *Client) Subscribe(topic string, handler func(msg *nats.Msg)) (*nats.Subscription, error) {
	return c.conn.Subscribe(topic, handler)
}

func (c *Client) Flush() error {
	return c.conn.Flush()
}

func (c *Client) Close() {
	c.conn.Close()
}
