package llm

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// EncodeMessages writes msgs as a JSON array of {role, content} objects.
func EncodeMessages(w io.Writer, msgs []Message) error {
	if msgs == nil {
		msgs = []Message{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(msgs); err != nil {
		return wrapError(Transport, err, "write messages")
	}
	return nil
}

// DecodeMessages reads a JSON array of {role, content} objects. Entries
// without a string role and content, or with an unknown role, are skipped.
// Input that is not a single JSON array fails with Parse.
func DecodeMessages(r io.Reader) ([]Message, error) {
	var raw []json.RawMessage
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, wrapError(Parse, err, "decode messages")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, newError(Parse, "decode messages: unexpected data after the array")
	}
	if raw == nil {
		return nil, newError(Parse, "decode messages: expected a JSON array")
	}
	msgs := make([]Message, 0, len(raw))
	for _, item := range raw {
		var entry map[string]any
		if err := json.Unmarshal(item, &entry); err != nil {
			continue
		}
		role, ok := entry["role"].(string)
		if !ok || !Role(role).Valid() {
			continue
		}
		content, ok := entry["content"].(string)
		if !ok {
			continue
		}
		msgs = append(msgs, Message{Role: Role(role), Content: content})
	}
	return msgs, nil
}

// SetMessages replaces the whole history with msgs. Nothing changes if any
// message has an invalid role.
func (c *Conversation) SetMessages(msgs []Message) error {
	for i, m := range msgs {
		if !m.Role.Valid() {
			return newError(InvalidArgument, "message %d: invalid role %q", i, m.Role)
		}
	}
	c.Clear()
	c.messages = append(c.messages, msgs...)
	return nil
}

// MessagesJSON returns the history in the persisted JSON format.
func (c *Conversation) MessagesJSON() ([]byte, error) {
	msgs := c.messages
	if msgs == nil {
		msgs = []Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return nil, wrapError(OutOfMemory, err, "marshal messages")
	}
	return data, nil
}

func (c *Conversation) SaveTo(w io.Writer) error {
	return EncodeMessages(w, c.messages)
}

// Save writes the history to path. Settings are not saved.
func (c *Conversation) Save(path string) error {
	if path == "" {
		return newError(InvalidArgument, "path is required")
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return wrapError(Transport, err, "open %s", path)
	}
	if err := c.SaveTo(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return wrapError(Transport, err, "close %s", path)
	}
	return nil
}

// LoadFrom replaces the history with the messages read from r. The history is
// left untouched if r does not hold a JSON array.
func (c *Conversation) LoadFrom(r io.Reader) error {
	c.ClearError()
	msgs, err := DecodeMessages(r)
	if err != nil {
		return c.setError(asError(err))
	}
	if err := c.SetMessages(msgs); err != nil {
		return c.setError(asError(err))
	}
	return nil
}

// Load replaces the history with the messages stored at path.
func (c *Conversation) Load(path string) error {
	c.ClearError()
	if path == "" {
		return c.setError(newError(InvalidArgument, "path is required"))
	}
	f, err := os.Open(path)
	if err != nil {
		return c.setError(wrapError(Transport, err, "open %s", path))
	}
	defer f.Close()
	return c.LoadFrom(f)
}

// PrintMessages writes one "<index> <role>: <content>" line per message.
func (c *Conversation) PrintMessages(w io.Writer) error {
	return PrintMessages(w, c.messages)
}

func PrintMessages(w io.Writer, msgs []Message) error {
	for i, m := range msgs {
		if _, err := fmt.Fprintf(w, "%d %s: %s\n", i, m.Role, m.Content); err != nil {
			return err
		}
	}
	return nil
}
