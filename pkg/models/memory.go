// Package models provides the canonical data types shared across the memory
// engine: the Memory record itself, its access-tracking metadata, and the
// error taxonomy every service surfaces at its public boundary.
package models

// Memory is the fundamental record stored and retrieved by the engine.
//
// (user_id, id) uniquely identifies a memory; id alone is sufficient within
// the cloud namespace the service partitions into. Source and RelevanceScore
// are transient: attached on read/search, never persisted.
type Memory struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	UserID    string            `json:"user_id"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	// Source indicates provenance on read: "hot" or "cloud". Not persisted.
	Source string `json:"source,omitempty"`

	// RelevanceScore is attached during search only. Not persisted.
	RelevanceScore float64 `json:"relevance_score,omitempty"`
}

// Clone returns a shallow copy safe for independent mutation of the
// transient Source/RelevanceScore fields and the Metadata map.
func (m Memory) Clone() Memory {
	meta := make(map[string]string, len(m.Metadata))
	for k, v := range m.Metadata {
		meta[k] = v
	}
	m.Metadata = meta
	return m
}

// Priority is the caller-supplied placement hint on write.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the three recognized priorities, or empty
// (callers that omit priority get the medium default applied upstream).
func (p Priority) Valid() bool {
	switch p {
	case "", PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

// Message is one turn of a {role, content} conversation, used when a caller
// supplies `messages` instead of a flat `content` string on add_memory.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// WriteInput is the normalized tagged-variant boundary type for add_memory:
// callers provide either Content or Messages, never both meaningfully, and
// every downstream component consumes the normalized Text() instead of
// branching on which shape arrived.
type WriteInput struct {
	Content  string
	Messages []Message
}

// Text returns the comparison text used for duplicate detection and cloud
// submission: the raw content, or the concatenation of message contents in
// order, one per line.
func (w WriteInput) Text() string {
	if w.Content != "" {
		return w.Content
	}
	text := ""
	for i, m := range w.Messages {
		if i > 0 {
			text += "\n"
		}
		text += m.Content
	}
	return text
}

// Empty reports whether neither Content nor Messages was supplied; this is a
// ValidationError at the boundary.
func (w WriteInput) Empty() bool {
	return w.Content == "" && len(w.Messages) == 0
}
