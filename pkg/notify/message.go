package notify

import (
	"net/url"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/conduit/pkg/errors"
)

// Object is an opaque JSON object
type Object = map[string]any

// Message is the delivery envelope of a notification
type Message struct {
	Type      string `json:"Type"`
	MessageID string `json:"MessageId,omitempty"`
	Subject   string `json:"Subject"`
	Timestamp string `json:"Timestamp"`
	// Body is the JSON-encoded Notification
	Body string `json:"Message,omitempty"`
}

// Notification is the decoded body of a message
type Notification struct {
	Message *Payload `json:"message,omitempty"`
}

// Payload carries the entity a notification is about
type Payload struct {
	User     Object   `json:"user,omitempty"`
	Segments []Object `json:"segments,omitempty"`
	Events   []Object `json:"events,omitempty"`
	Changes  Object   `json:"changes,omitempty"`
}

// EventPayload is a single sub-event of a report, delivered on its own
type EventPayload struct {
	Message   EventMessage `json:"message"`
	Subject   string       `json:"subject"`
	Timestamp string       `json:"timestamp"`
}

// EventMessage is the body of an EventPayload
type EventMessage struct {
	User     Object   `json:"user,omitempty"`
	Segments []Object `json:"segments"`
	Event    Object   `json:"event"`
}

// Scope identifies the tenant a notification belongs to. Queues are never
// shared between scopes.
type Scope struct {
	Organization string `json:"organization"`
	Ship         string `json:"ship"`
	RequestID    string `json:"request_id,omitempty"`
}

// Key returns the queue key prefix of the scope. Both parts are path
// escaped, so distinct scopes never share a prefix.
func (s Scope) Key() string {
	if s.Organization == "" && s.Ship == "" {
		return "global"
	}
	return url.PathEscape(s.Organization) + "/" + url.PathEscape(s.Ship)
}

// ParseMessage decodes an envelope and, when present, the notification it
// carries in its Message field.
func ParseMessage(data []byte) (Message, Notification, error) {
	var msg Message
	var n Notification

	if err := gojson.Unmarshal(data, &msg); err != nil {
		return msg, n, errors.Wrap(err, errors.ErrorTypeInvalidInput, "malformed message").
			WithStatus(errors.DefaultStatus)
	}
	if msg.Body == "" {
		return msg, n, nil
	}
	if err := gojson.Unmarshal([]byte(msg.Body), &n); err != nil {
		return msg, n, errors.Wrap(err, errors.ErrorTypeInvalidInput, "malformed notification").
			WithStatus(errors.DefaultStatus)
	}
	return msg, n, nil
}

// expand splits a report payload into one EventPayload per sub-event
func expand(msg Message, p *Payload) []EventPayload {
	if p == nil || len(p.Events) == 0 {
		return nil
	}
	segments := p.Segments
	if segments == nil {
		segments = []Object{}
	}

	out := make([]EventPayload, 0, len(p.Events))
	for _, event := range p.Events {
		out = append(out, EventPayload{
			Message: EventMessage{
				User:     p.User,
				Segments: segments,
				Event:    event,
			},
			Subject:   "event",
			Timestamp: msg.Timestamp,
		})
	}
	return out
}
