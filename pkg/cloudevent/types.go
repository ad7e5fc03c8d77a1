// Package cloudevent provides CloudEvents 1.0 envelopes and HTTP delivery.
package cloudevent

import "time"

// Event is a CloudEvents 1.0 envelope. Data holds the domain payload and is
// marshaled as-is.
type Event struct {
	SpecVersion     string    `json:"specversion"`
	Type            string    `json:"type"`
	Source          string    `json:"source"`
	Subject         string    `json:"subject"`
	ID              string    `json:"id"`
	Time            time.Time `json:"time"`
	DataContentType string    `json:"datacontenttype"`
	Data            any       `json:"data"`
}

// New builds an event with specversion and datacontenttype filled in.
func New(eventType, source, subject, id string, data any) *Event {
	return &Event{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          source,
		Subject:         subject,
		ID:              id,
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
	}
}
