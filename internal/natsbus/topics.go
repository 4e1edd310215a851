package natsbus

import "fmt"

// Topic patterns for NATS pub/sub communication.

func TopicRunEvents(runID string) string {
	return fmt.Sprintf("run.%s.events", runID)
}

func TopicEventsRun(kind string) string {
	return fmt.Sprintf("events.run.%s", kind)
}

const (
	TopicEventsAll    = "events.>"
	TopicEventsAnyRun = "events.run.*"
)
