package types

import "sort"

// Event represents a typed event emitted during an invocation.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// SortedKeys returns the attribute keys in lexical order so encoders can
// produce deterministic output.
func (e Event) SortedKeys() []string {
	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LoggedEvent is an event after the host has appended it to the event log.
type LoggedEvent struct {
	Seq        uint64 `json:"seq"`
	Invocation string `json:"invocation"`
	Contract   string `json:"contract"`
	Event
}
