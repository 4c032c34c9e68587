// Package notify delivers job lifecycle messages to requesters.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmylchreest/autoclip/internal/models"
)

// Notifier is the sink for messages addressed to a requester. Methods do
// not return errors; implementations log their own delivery failures.
type Notifier interface {
	Notify(ctx context.Context, requesterID, text string)
	NotifyProgress(ctx context.Context, requesterID string, jobID models.ULID, percent int)
	DeliverArtifact(ctx context.Context, requesterID string, jobID models.ULID, path string)
}

// EventType identifies what an Event carries.
type EventType string

const (
	EventMessage  EventType = "message"
	EventProgress EventType = "progress"
	EventArtifact EventType = "artifact"
)

// Event is the wire form of one notification.
type Event struct {
	Type        EventType `json:"type"`
	RequesterID string    `json:"requester_id"`
	JobID       string    `json:"job_id,omitempty"`
	Text        string    `json:"text,omitempty"`
	Percent     int       `json:"percent,omitempty"`
	Path        string    `json:"path,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that only logs.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With(slog.String("component", "notify"))}
}

func (n *LogNotifier) Notify(ctx context.Context, requesterID, text string) {
	n.logger.InfoContext(ctx, "notify",
		slog.String("requester_id", requesterID),
		slog.String("text", text),
	)
}

func (n *LogNotifier) NotifyProgress(ctx context.Context, requesterID string, jobID models.ULID, percent int) {
	n.logger.DebugContext(ctx, "progress",
		slog.String("requester_id", requesterID),
		slog.String("job_id", jobID.String()),
		slog.Int("percent", percent),
	)
}

func (n *LogNotifier) DeliverArtifact(ctx context.Context, requesterID string, jobID models.ULID, path string) {
	n.logger.InfoContext(ctx, "artifact ready",
		slog.String("requester_id", requesterID),
		slog.String("job_id", jobID.String()),
		slog.String("path", path),
	)
}

// Fanout forwards every call to each of its notifiers in order.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, requesterID, text string) {
	for _, n := range f {
		n.Notify(ctx, requesterID, text)
	}
}

func (f Fanout) NotifyProgress(ctx context.Context, requesterID string, jobID models.ULID, percent int) {
	for _, n := range f {
		n.NotifyProgress(ctx, requesterID, jobID, percent)
	}
}

func (f Fanout) DeliverArtifact(ctx context.Context, requesterID string, jobID models.ULID, path string) {
	for _, n := range f {
		n.DeliverArtifact(ctx, requesterID, jobID, path)
	}
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Notify(context.Context, string, string) {}
func (Discard) NotifyProgress(context.Context, string, models.ULID, int) {}
func (Discard) DeliverArtifact(context.Context, string, models.ULID, string) {}
