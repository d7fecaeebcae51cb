// Package audit records destructive and credential-changing operations as a
// separate JSON event stream.
package audit

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event is one audit record.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Target    string         `json:"target"`
	Success   bool           `json:"success"`
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Recorder receives audit events. Implementations must not block the caller
// on slow sinks for long; a failure to record never fails the operation.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// ZerologRecorder writes each event as one JSON line under "audit_event".
type ZerologRecorder struct {
	mu     sync.Mutex
	logger zerolog.Logger
	now    func() time.Time
}

func NewZerologRecorder(w io.Writer) *ZerologRecorder {
	return &ZerologRecorder{
		logger: zerolog.New(w),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *ZerologRecorder) Record(_ context.Context, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger.Log().Interface("audit_event", e).Send()
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Event) {}

// Nop discards every event.
func Nop() Recorder { return nopRecorder{} }
