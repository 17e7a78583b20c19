package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"chatctl/internal/config"
	"chatctl/internal/history"
	"chatctl/internal/llm"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// connOptions are the per-invocation overrides shared by every command that
// talks to the endpoint.
type connOptions struct {
	Stream   bool
	NoStream bool
	Model    string
	URL      string
	Token    string
}

func (o *connOptions) register(flags *pflag.FlagSet) {
	flags.BoolVar(&o.Stream, "stream", false, "stream response")
	flags.BoolVar(&o.NoStream, "no-stream", false, "disable streaming response")
	flags.StringVar(&o.Model, "model", "", "override model name")
	flags.StringVar(&o.URL, "url", "", "override base url")
	flags.StringVar(&o.Token, "token", "", "override access token")
}

type chatOptions struct {
	connOptions
	Prompt      string
	System      string
	Temperature float64
	TopP        float64
	MaxTokens   int
	Context     int
	Session     string
}

func newChatCmd() *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Send a prompt and print the reply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts)
		},
	}

	opts.register(cmd.Flags())
	cmd.Flags().StringVar(&opts.Prompt, "prompt", "", "prompt content (read stdin if empty)")
	cmd.Flags().StringVar(&opts.System, "system", "", "system prompt")
	cmd.Flags().Float64Var(&opts.Temperature, "temperature", llm.DefaultTemperature, "sampling temperature [0, 2]")
	cmd.Flags().Float64Var(&opts.TopP, "top-p", llm.DefaultTopP, "nucleus sampling (0, 1]")
	cmd.Flags().IntVar(&opts.MaxTokens, "max-tokens", 0, "reply token limit, 0 for none")
	cmd.Flags().IntVar(&opts.Context, "context", llm.DefaultContextMessages, "trailing messages sent per request")
	cmd.Flags().StringVar(&opts.Session, "session", "", "history session name")

	return cmd
}

func runChat(cmd *cobra.Command, opts *chatOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	prompt, err := readPrompt(opts.Prompt, cmd.InOrStdin())
	if err != nil {
		return err
	}
	conv, err := newConversation(cfg.LLM, &opts.connOptions)
	if err != nil {
		return err
	}
	if err := applyChatFlags(cmd.Flags(), conv, opts); err != nil {
		return err
	}

	ctx := cmd.Context()
	var store history.Store
	session := firstNonEmpty(opts.Session, cfg.History.Name)
	if cfg.History.Path != "" {
		store, err = history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		msgs, err := store.Load(ctx, session)
		switch {
		case errors.Is(err, history.ErrNotFound):
		case err != nil:
			return err
		default:
			if err := conv.SetMessages(msgs); err != nil {
				return err
			}
		}
	} else if opts.Session != "" {
		return usagef("--session requires history.path to be configured")
	}

	if err := setSystemPrompt(conv, opts.System); err != nil {
		return err
	}
	if err := conv.AppendUser(prompt); err != nil {
		return err
	}

	reply, err := send(ctx, cmd.OutOrStdout(), conv)
	if err != nil {
		return err
	}
	if err := conv.AppendAssistant(reply); err != nil {
		return err
	}

	if store != nil {
		if err := store.Save(ctx, session, conv.Messages()); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
	}
	usage := conv.Usage()
	llm.Logger().Debug("chat finished",
		zap.String("session", session),
		zap.Int("messages", conv.Count()),
		zap.Int("total_tokens", usage.TotalTokens),
	)
	return nil
}

func applyChatFlags(flags *pflag.FlagSet, conv *llm.Conversation, opts *chatOptions) error {
	if flags.Changed("temperature") {
		if err := conv.SetTemperature(opts.Temperature); err != nil {
			return err
		}
	}
	if flags.Changed("top-p") {
		if err := conv.SetTopP(opts.TopP); err != nil {
			return err
		}
	}
	if flags.Changed("max-tokens") {
		if err := conv.SetMaxTokens(opts.MaxTokens); err != nil {
			return err
		}
	}
	if flags.Changed("context") {
		if err := conv.SetContextMessages(opts.Context); err != nil {
			return err
		}
	}
	return nil
}

// setSystemPrompt replaces the latest system message, or puts one in front of
// the history when there is none.
func setSystemPrompt(conv *llm.Conversation, system string) error {
	if strings.TrimSpace(system) == "" {
		return nil
	}
	err := conv.ReplaceLastOfRole(llm.RoleSystem, system)
	if llm.KindOf(err) != llm.IllegalState {
		return err
	}
	msgs := append([]llm.Message{{Role: llm.RoleSystem, Content: system}}, conv.Messages()...)
	return conv.SetMessages(msgs)
}

type pingOptions struct {
	connOptions
}

func newPingCmd() *cobra.Command {
	opts := &pingOptions{}
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Test connectivity with config or flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPing(cmd, opts)
		},
	}

	opts.register(cmd.Flags())
	return cmd
}

func runPing(cmd *cobra.Command, opts *pingOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	conv, err := newConversation(cfg.LLM, &opts.connOptions)
	if err != nil {
		return err
	}
	if err := conv.AppendUser("ping"); err != nil {
		return err
	}
	_, err = send(cmd.Context(), cmd.OutOrStdout(), conv)
	return err
}

// send completes conv and prints the reply, writing deltas as they arrive
// when streaming.
func send(ctx context.Context, out io.Writer, conv *llm.Conversation) (string, error) {
	if conv.Streaming() {
		reply, err := conv.CompleteStream(ctx, func(delta string) error {
			_, writeErr := fmt.Fprint(out, delta)
			return writeErr
		})
		if err != nil {
			return "", err
		}
		_, _ = fmt.Fprintln(out)
		return reply, nil
	}

	reply, err := conv.Complete(ctx)
	if err != nil {
		return "", err
	}
	_, err = fmt.Fprintln(out, reply)
	return reply, err
}

// newConversation builds a conversation from the config, with command line
// overrides applied on top.
func newConversation(cfg config.LLMConfig, opts *connOptions) (*llm.Conversation, error) {
	if opts.Stream && opts.NoStream {
		return nil, usagef("only one of --stream or --no-stream can be set")
	}
	conv, err := llm.New(firstNonEmpty(opts.Token, cfg.Token), "")
	if err != nil {
		return nil, err
	}
	if err := cfg.Apply(conv); err != nil {
		return nil, err
	}
	if opts.Model != "" {
		if err := conv.SetModel(opts.Model); err != nil {
			return nil, err
		}
	}
	if opts.URL != "" {
		if err := conv.SetBaseURL(opts.URL); err != nil {
			return nil, err
		}
	}
	switch {
	case opts.Stream:
		conv.SetStreaming(true)
	case opts.NoStream:
		conv.SetStreaming(false)
	}
	conv.SetHTTPClient(&http.Client{Timeout: cfg.Timeout})
	return conv, nil
}

// readPrompt returns prompt, or stdin when prompt is empty. An interactive
// terminal is never read.
func readPrompt(prompt string, stdin io.Reader) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt != "" {
		return prompt, nil
	}
	if f, ok := stdin.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return "", usagef("prompt is required: pass --prompt or pipe it on stdin")
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	prompt = strings.TrimSpace(string(data))
	if prompt == "" {
		return "", usagef("prompt is required")
	}
	return prompt, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
