package store

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Source is a supporting document cited by an assistant message.
type Source struct {
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
	Confidence string  `json:"confidence"`
}

// MessageMetadata is the generation metadata attached to an assistant message.
type MessageMetadata struct {
	Model          string   `json:"model,omitempty"`
	Timestamp      string   `json:"timestamp,omitempty"`
	ExecutionTime  float64  `json:"execution_time,omitempty"`
	DocumentsFound int      `json:"documents_found,omitempty"`
	Error          string   `json:"error,omitempty"`
	Sources        []Source `json:"sources,omitempty"`
}

func (m *MessageMetadata) clone() *MessageMetadata {
	if m == nil {
		return nil
	}
	c := *m
	if m.Sources != nil {
		c.Sources = append([]Source(nil), m.Sources...)
	}
	return &c
}

// Message is one entry of a thread.
// Timestamp is the identity key of the message within its thread.
type Message struct {
	Role        Role             `json:"role"`
	Content     string           `json:"content"`
	Timestamp   int64            `json:"timestamp"`
	Metadata    *MessageMetadata `json:"metadata,omitempty"`
	IsStreaming bool             `json:"isStreaming,omitempty"`
}

// merge overlays incoming onto m. Content and IsStreaming always follow the
// incoming write; Role and Metadata are kept when the incoming value is empty.
func (m *Message) merge(incoming Message) {
	if incoming.Role != "" {
		m.Role = incoming.Role
	}
	m.Content = incoming.Content
	if incoming.Metadata != nil {
		m.Metadata = incoming.Metadata.clone()
	}
	m.IsStreaming = incoming.IsStreaming
}

// MessageUpdate carries the fields UpdateMessage should overwrite. Nil fields are left untouched.
type MessageUpdate struct {
	Role        *Role
	Content     *string
	Metadata    *MessageMetadata
	IsStreaming *bool
}

func (m *Message) apply(u MessageUpdate) {
	if u.Role != nil {
		m.Role = *u.Role
	}
	if u.Content != nil {
		m.Content = *u.Content
	}
	if u.Metadata != nil {
		m.Metadata = u.Metadata.clone()
	}
	if u.IsStreaming != nil {
		m.IsStreaming = *u.IsStreaming
	}
}

// Thread is one independent conversation bound to a completion model.
type Thread struct {
	ID         string    `json:"id"`
	Model      string    `json:"model"`
	Name       string    `json:"name,omitempty"`
	Messages   []Message `json:"messages"`
	CreatedAt  int64     `json:"createdAt"`
	LastActive int64     `json:"lastActive"`
}

func (t *Thread) clone() Thread {
	c := *t
	c.Messages = make([]Message, len(t.Messages))
	for i, m := range t.Messages {
		m.Metadata = m.Metadata.clone()
		c.Messages[i] = m
	}
	return c
}

func (t *Thread) indexOf(timestamp int64) int {
	for i := range t.Messages {
		if t.Messages[i].Timestamp == timestamp {
			return i
		}
	}
	return -1
}

// FirstUserMessage returns the content of the first user-authored message.
func (t *Thread) FirstUserMessage() (string, bool) {
	for _, m := range t.Messages {
		if m.Role == RoleUser {
			return m.Content, true
		}
	}
	return "", false
}

// State is a point-in-time copy of the store contents.
type State struct {
	Threads          []Thread `json:"threads"`
	CurrentThreadID  string   `json:"currentThreadId,omitempty"`
	LastActiveThread string   `json:"lastActiveThread,omitempty"`
}

// Has reports whether a thread with the given id exists in the state.
func (s *State) Has(threadID string) bool {
	if threadID == "" {
		return false
	}
	for i := range s.Threads {
		if s.Threads[i].ID == threadID {
			return true
		}
	}
	return false
}
