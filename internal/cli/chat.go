package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/carebot"
	"github.com/aretw0/carebot/internal/presentation/tui"
	"github.com/aretw0/carebot/pkg/domain"
)

// Conversation is the engine surface the chat loop needs.
type Conversation interface {
	Send(ctx context.Context, sessionID, text string) (*carebot.Reply, error)
	Reset(ctx context.Context, sessionID string) error
}

// ChatOptions configure Chat.
type ChatOptions struct {
	SessionID string
	// JSON switches to NDJSON: one {"text": ...} object per input line and one
	// reply object per output line.
	JSON   bool
	Render tui.Renderer
	Prompt string
}

type jsonInput struct {
	Text string `json:"text"`
}

type jsonOutput struct {
	*carebot.Reply
	Error string `json:"error,omitempty"`
}

// Chat reads messages from in until EOF, "exit" or ctx is done, and writes
// each reply to out.
func Chat(ctx context.Context, conv Conversation, in io.Reader, out io.Writer, opts ChatOptions) error {
	if opts.Render == nil {
		opts.Render = tui.Plain
	}
	if opts.Prompt == "" && !opts.JSON {
		opts.Prompt = "> "
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	enc := json.NewEncoder(out)
	for {
		fmt.Fprint(out, opts.Prompt)

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			line = l
		}

		if opts.JSON {
			if err := chatJSON(ctx, conv, enc, opts.SessionID, line); err != nil {
				return err
			}
			continue
		}

		text := strings.TrimSpace(line)
		switch strings.ToLower(text) {
		case "":
			continue
		case "exit", "quit", "/exit", "/quit":
			return nil
		case "/reset":
			if err := conv.Reset(ctx, opts.SessionID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
				return err
			}
			fmt.Fprintln(out, "Conversation cleared.")
			continue
		}

		reply, err := conv.Send(ctx, opts.SessionID, text)
		if err != nil {
			return err
		}
		fmt.Fprint(out, opts.Render(reply.Text))
	}
}

func chatJSON(ctx context.Context, conv Conversation, enc *json.Encoder, sessionID, line string) error {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	var msg jsonInput
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return enc.Encode(jsonOutput{Error: "invalid input: " + err.Error()})
	}
	reply, err := conv.Send(ctx, sessionID, msg.Text)
	if errors.Is(err, carebot.ErrEmptyMessage) {
		return enc.Encode(jsonOutput{Error: err.Error()})
	}
	if err != nil {
		return err
	}
	return enc.Encode(jsonOutput{Reply: reply})
}
