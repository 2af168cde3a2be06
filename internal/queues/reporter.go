package queues

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

type Pusher interface {
	Push(ctx context.Context, routingKey string, body []byte) error
}

type Event struct {
	Topic string    `json:"topic"`
	Level string    `json:"level"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

// Reporter mirrors tracking status text onto the broker under
// "{topic}.{level}" routing keys.
type Reporter struct {
	pusher  Pusher
	topic   string
	timeout time.Duration
	now     func() time.Time
}

func NewReporter(pusher Pusher, topic string) *Reporter {
	return &Reporter{pusher: pusher, topic: topic, timeout: 5 * time.Second, now: time.Now}
}

func (r *Reporter) ReportInfo(text string) {
	r.push("info", text)
}

func (r *Reporter) ReportError(text string) {
	r.push("error", text)
}

func (r *Reporter) push(level, text string) {
	body, err := json.Marshal(Event{Topic: r.topic, Level: level, Text: text, At: r.now().UTC()})
	if err != nil {
		slog.Error("encode tracking event", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.pusher.Push(ctx, r.topic+"."+level, body); err != nil {
		slog.Warn("tracking event not queued", "topic", r.topic, "error", err)
	}
}
