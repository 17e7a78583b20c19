package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

const (
	sseDataPrefix = "data:"
	sseDone       = "[DONE]"

	streamReadSize = 32 * 1024
)

// errStreamDone is returned by the decoder once the [DONE] sentinel is seen.
var errStreamDone = errors.New("stream done")

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// sseDecoder turns the raw bytes of a chat completion event stream into
// content deltas. Chunk boundaries are arbitrary: an incomplete trailing line
// is kept until the rest of it arrives.
type sseDecoder struct {
	handle  StreamHandler
	pending []byte
	text    strings.Builder
	deltas  int
	done    bool
}

func newSSEDecoder(handle StreamHandler) *sseDecoder {
	return &sseDecoder{handle: handle}
}

// Write feeds one chunk. It returns errStreamDone after the sentinel and the
// handler's error if the handler rejects a delta; no further data is
// processed after either.
func (d *sseDecoder) Write(chunk []byte) (int, error) {
	if d.done {
		return 0, errStreamDone
	}
	d.pending = append(d.pending, chunk...)
	for {
		i := bytes.IndexByte(d.pending, '\n')
		if i < 0 {
			break
		}
		line := d.pending[:i]
		d.pending = d.pending[i+1:]
		if err := d.line(line); err != nil {
			d.done = true
			d.pending = nil
			return len(chunk), err
		}
	}
	if len(d.pending) == 0 {
		d.pending = nil
	} else if cap(d.pending) > 2*len(d.pending)+streamReadSize {
		d.pending = append([]byte(nil), d.pending...)
	}
	return len(chunk), nil
}

// Flush processes a final line that was never terminated by a newline.
func (d *sseDecoder) Flush() error {
	if d.done || len(d.pending) == 0 {
		return nil
	}
	line := d.pending
	d.pending = nil
	if err := d.line(line); err != nil {
		d.done = true
		return err
	}
	return nil
}

func (d *sseDecoder) line(line []byte) error {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if !bytes.HasPrefix(line, []byte(sseDataPrefix)) {
		return nil
	}
	payload := bytes.TrimLeft(line[len(sseDataPrefix):], " ")
	if string(payload) == sseDone {
		return errStreamDone
	}
	var chunk streamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return nil
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == nil {
		return nil
	}
	delta := *chunk.Choices[0].Delta.Content
	d.deltas++
	if d.handle != nil {
		if err := d.handle(delta); err != nil {
			return fmt.Errorf("stream handler: %w", err)
		}
	}
	d.text.WriteString(delta)
	return nil
}

func (d *sseDecoder) Text() string {
	return d.text.String()
}

// CompleteStream sends the conversation with streaming enabled, calls handle
// with every content delta as it arrives and returns the full reply, which is
// also kept as LastReply. Deltas already delivered are not retracted if the
// stream later fails. handle may be nil.
func (c *Conversation) CompleteStream(ctx context.Context, handle StreamHandler) (string, error) {
	return c.completeStream(ctx, handle, true)
}

// Stream is CompleteStream without keeping the reply: LastReply is unchanged
// and the accumulated text is discarded.
func (c *Conversation) Stream(ctx context.Context, handle StreamHandler) error {
	_, err := c.completeStream(ctx, handle, false)
	return err
}

func (c *Conversation) completeStream(ctx context.Context, handle StreamHandler, capture bool) (string, error) {
	c.ClearError()
	body, buildErr := c.requestBody(true)
	if buildErr != nil {
		return "", c.setError(buildErr)
	}

	httpResp, sendErr := c.send(ctx, body, true)
	if sendErr != nil {
		return "", c.setError(sendErr)
	}
	defer httpResp.Body.Close()
	status := httpResp.StatusCode

	if !isSuccess(status) {
		data, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
		var resp chatResponse
		decodeErr := json.Unmarshal(data, &resp)
		return "", c.setError(statusError(status, resp.Error, decodeErr))
	}

	dec := newSSEDecoder(handle)
	if err := pump(httpResp.Body, dec); err != nil {
		return "", c.setError(&Error{Kind: Stream, Message: err.Error(), HTTPStatus: status, Err: err})
	}
	Logger().Debug("chat completion stream finished",
		zap.String("conversation_id", c.id),
		zap.Int("status", status),
		zap.Int("deltas", dec.deltas),
	)

	c.lastErr.HTTPStatus = status
	if !capture {
		return "", nil
	}
	text := dec.Text()
	c.lastReply = text
	return text, nil
}

// pump reads r chunk by chunk into dec until the sentinel, EOF or an error.
func pump(r io.Reader, dec *sseDecoder) error {
	buf := make([]byte, streamReadSize)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := dec.Write(buf[:n]); err != nil {
				if errors.Is(err, errStreamDone) {
					return nil
				}
				return err
			}
		}
		if readErr == io.EOF {
			if err := dec.Flush(); err != nil && !errors.Is(err, errStreamDone) {
				return err
			}
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read stream: %w", readErr)
		}
	}
}
