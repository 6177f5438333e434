package agent

import "codeassist/internal/domain"

// Conversation is the append-only turn log replayed to the model each cycle.
// It is owned by a single Loop run and is not safe for concurrent use.
type Conversation struct {
	turns []domain.Turn
}

// NewConversation starts a log with the user's prompt.
func NewConversation(prompt string) *Conversation {
	return &Conversation{turns: []domain.Turn{domain.UserTurn(prompt)}}
}

// Append stores a private copy of t.
func (c *Conversation) Append(t domain.Turn) {
	c.turns = append(c.turns, t.Clone())
}

// Turns returns a copy of the log in insertion order.
func (c *Conversation) Turns() []domain.Turn {
	out := make([]domain.Turn, len(c.turns))
	for i, t := range c.turns {
		out[i] = t.Clone()
	}
	return out
}

func (c *Conversation) Len() int { return len(c.turns) }
