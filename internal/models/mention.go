package models

// MentionKind is the identity namespace a handle resolved into. Handles are
// looked up against users first, then conversations.
type MentionKind string

const (
	MentionUser         MentionKind = "user"
	MentionConversation MentionKind = "conversation"
	MentionNotFound     MentionKind = "not_found"
)

// MentionEntry is the memoized resolution of an @handle. Not-found results
// are cached too; entries are never invalidated within a session.
type MentionEntry struct {
	Handle      string      `json:"handle"`
	Kind        MentionKind `json:"kind"`
	ID          string      `json:"id,omitempty"`
	DisplayName string      `json:"displayName,omitempty"`
	PhotoURL    string      `json:"photoUrl,omitempty"`
	Private     bool        `json:"private,omitempty"`
}
