package stream

import (
	"encoding/json"
	"log/slog"
	"time"
)

type Message struct {
	Level string    `json:"level"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

// Reporter publishes tracking status text on one hub topic.
type Reporter struct {
	hub   *Hub
	topic string
	now   func() time.Time
}

func NewReporter(hub *Hub, topic string) *Reporter {
	return &Reporter{hub: hub, topic: topic, now: time.Now}
}

func (r *Reporter) ReportInfo(text string) {
	slog.Info(text, "topic", r.topic)
	r.publish("info", text)
}

func (r *Reporter) ReportError(text string) {
	slog.Error(text, "topic", r.topic)
	r.publish("error", text)
}

func (r *Reporter) publish(level, text string) {
	payload, err := json.Marshal(Message{Level: level, Text: text, At: r.now().UTC()})
	if err != nil {
		slog.Error("encode tracking message", "error", err)
		return
	}
	r.hub.Broadcast(r.topic, payload)
}
