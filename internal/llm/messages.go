package llm

const initialMessageCapacity = 4

// Append adds a message to the end of the history.
func (c *Conversation) Append(role Role, content string) error {
	if !role.Valid() {
		return newError(InvalidArgument, "invalid role %q", role)
	}
	if c.messages == nil {
		c.messages = make([]Message, 0, initialMessageCapacity)
	}
	c.messages = append(c.messages, Message{Role: role, Content: content})
	return nil
}

func (c *Conversation) AppendUser(content string) error {
	return c.Append(RoleUser, content)
}

func (c *Conversation) AppendSystem(content string) error {
	return c.Append(RoleSystem, content)
}

func (c *Conversation) AppendAssistant(content string) error {
	return c.Append(RoleAssistant, content)
}

// Count returns the number of messages in the history.
func (c *Conversation) Count() int {
	return len(c.messages)
}

// Message returns the message at index i, oldest first.
func (c *Conversation) Message(i int) (Message, error) {
	if i < 0 || i >= len(c.messages) {
		return Message{}, newError(InvalidArgument, "index %d out of range [0, %d)", i, len(c.messages))
	}
	return c.messages[i], nil
}

// Messages returns a copy of the history, oldest first.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// RemoveLast drops the most recent message.
func (c *Conversation) RemoveLast() error {
	if len(c.messages) == 0 {
		return newError(InvalidArgument, "conversation has no messages")
	}
	c.messages[len(c.messages)-1] = Message{}
	c.messages = c.messages[:len(c.messages)-1]
	return nil
}

// RemoveAt deletes the message at index i and shifts the later ones down.
func (c *Conversation) RemoveAt(i int) error {
	n := len(c.messages)
	if i < 0 || i >= n {
		return newError(InvalidArgument, "index %d out of range [0, %d)", i, n)
	}
	copy(c.messages[i:], c.messages[i+1:])
	c.messages[n-1] = Message{}
	c.messages = c.messages[:n-1]
	return nil
}

// lastOfRole returns the index of the most recent message with role, or -1.
func (c *Conversation) lastOfRole(role Role) int {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == role {
			return i
		}
	}
	return -1
}

// ReplaceLastOfRole swaps the content of the most recent message with role.
func (c *Conversation) ReplaceLastOfRole(role Role, content string) error {
	if !role.Valid() {
		return newError(InvalidArgument, "invalid role %q", role)
	}
	i := c.lastOfRole(role)
	if i < 0 {
		return newError(IllegalState, "no %s message in conversation", role)
	}
	c.messages[i].Content = content
	return nil
}

// AppendToLastOfRole extends the content of the most recent message with role.
func (c *Conversation) AppendToLastOfRole(role Role, extra string) error {
	if !role.Valid() {
		return newError(InvalidArgument, "invalid role %q", role)
	}
	i := c.lastOfRole(role)
	if i < 0 {
		return newError(IllegalState, "no %s message in conversation", role)
	}
	c.messages[i].Content += extra
	return nil
}

func (c *Conversation) ReplaceLastUser(content string) error {
	return c.ReplaceLastOfRole(RoleUser, content)
}

func (c *Conversation) AppendToLastAssistant(extra string) error {
	return c.AppendToLastOfRole(RoleAssistant, extra)
}

// Clear drops every message. Settings are kept.
func (c *Conversation) Clear() {
	clear(c.messages)
	c.messages = c.messages[:0]
}
