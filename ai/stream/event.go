// Package stream folds incremental chat replies arriving over a push channel into
// a single growing assistant message in the thread store.
package stream

import (
	"encoding/json"
	"fmt"

	"github.com/hrygo/xflo/store"
)

// EventKind classifies a push channel event.
type EventKind int

const (
	// KindUnknown carries neither content nor metadata and is skipped.
	KindUnknown EventKind = iota
	// KindStatus is a progress notification with no payload for the message.
	KindStatus
	// KindContent carries a text fragment to append.
	KindContent
	// KindMetadata carries the final generation metadata and completes the reply.
	KindMetadata
)

func (k EventKind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindContent:
		return "content"
	case KindMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// Event is one JSON object received on the push channel:
//
//	{"type":"status"}
//	{"content":"Hel"}
//	{"metadata":{"model":"gpt-4","execution_time":1.2,"documents_found":3,"sources":[...]}}
type Event struct {
	Type     string                 `json:"type,omitempty"`
	Content  *string                `json:"content,omitempty"`
	Metadata *store.MessageMetadata `json:"metadata,omitempty"`
}

// Kind reports how the reducer treats the event. A status type wins over any payload;
// metadata wins over content.
func (e Event) Kind() EventKind {
	switch {
	case e.Type == "status":
		return KindStatus
	case e.Metadata != nil:
		return KindMetadata
	case e.Content != nil:
		return KindContent
	default:
		return KindUnknown
	}
}

// ContentEvent builds a content delta event.
func ContentEvent(fragment string) Event {
	return Event{Content: &fragment}
}

// MetadataEvent builds a finalization event.
func MetadataEvent(meta store.MessageMetadata) Event {
	return Event{Metadata: &meta}
}

// StatusEvent builds a status event.
func StatusEvent() Event {
	return Event{Type: "status"}
}

// DecodeEvent parses one push channel payload.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode stream event: %w", err)
	}
	return ev, nil
}
