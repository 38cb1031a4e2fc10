// Package events streams ordered progress events for a single run.
package events

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// Type tags an Event.
type Type string

const (
	TypeProgress Type = "progress"
	TypeDone     Type = "done"
	TypeError    Type = "error"
)

// Event is one entry of a run's progress stream.
type Event struct {
	Type    Type   `json:"type"`
	Message string `json:"message,omitempty"`
	Payload any    `json:"payload,omitempty"`
	Details string `json:"details,omitempty"`
}

// Sink receives events in order.
type Sink interface {
	Send(Event) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event) error

func (f SinkFunc) Send(e Event) error { return f(e) }

// Emitter is the single writer for a run. After a terminal event (done or
// error) every further emission is a no-op. Sink failures are logged once and
// mark the sink disconnected; they never surface to the caller.
type Emitter struct {
	mu           sync.Mutex
	sink         Sink
	finished     bool
	disconnected bool
}

// NewEmitter creates an emitter writing to sink. A nil sink discards events.
func NewEmitter(sink Sink) *Emitter {
	return &Emitter{sink: sink}
}

// Discard returns an emitter that drops every event.
func Discard() *Emitter {
	return NewEmitter(nil)
}

// Progress emits a human-readable status update.
func (e *Emitter) Progress(message string) {
	e.emit(Event{Type: TypeProgress, Message: message}, false)
}

// Done emits the terminal result.
func (e *Emitter) Done(payload any) {
	e.emit(Event{Type: TypeDone, Payload: payload}, true)
}

// Fail emits the terminal error.
func (e *Emitter) Fail(message, details string) {
	e.emit(Event{Type: TypeError, Message: message, Details: details}, true)
}

// Finished reports whether a terminal event has been emitted.
func (e *Emitter) Finished() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finished
}

func (e *Emitter) emit(ev Event, terminal bool) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.finished {
		zap.L().Debug("event after terminal dropped", zap.String("type", string(ev.Type)))
		return
	}
	if terminal {
		e.finished = true
	}
	if e.sink == nil || e.disconnected {
		return
	}
	if err := e.sink.Send(ev); err != nil {
		e.disconnected = true
		zap.L().Warn("event sink failed; further events dropped",
			zap.String("type", string(ev.Type)),
			zap.Error(err))
	}
}

// NDJSONSink writes one JSON object per line and flushes after each event
// when the writer supports it.
type NDJSONSink struct {
	w   io.Writer
	enc *json.Encoder
}

// NewNDJSONSink creates a newline-delimited JSON sink.
func NewNDJSONSink(w io.Writer) *NDJSONSink {
	return &NDJSONSink{w: w, enc: json.NewEncoder(w)}
}

func (s *NDJSONSink) Send(ev Event) error {
	if err := s.enc.Encode(ev); err != nil {
		return err
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Send(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Terminal returns the terminal events recorded so far.
func (r *Recorder) Terminal() []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == TypeDone || ev.Type == TypeError {
			out = append(out, ev)
		}
	}
	return out
}
