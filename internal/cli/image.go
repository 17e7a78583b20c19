package cli

import (
	"fmt"

	"chatctl/internal/config"
	"chatctl/internal/llm"

	"github.com/spf13/cobra"
)

type imageOptions struct {
	connOptions
	Prompt string
	Size   string
}

func newImageCmd() *cobra.Command {
	opts := &imageOptions{}
	cmd := &cobra.Command{
		Use:   "image",
		Short: "Generate an image and print its URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImage(cmd, opts)
		},
	}
	opts.register(cmd.Flags())
	cmd.Flags().StringVar(&opts.Prompt, "prompt", "", "image description (read stdin if empty)")
	cmd.Flags().StringVar(&opts.Size, "size", llm.ImageSize1024, "256x256, 512x512 or 1024x1024")
	return cmd
}

func runImage(cmd *cobra.Command, opts *imageOptions) error {
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
	url, err := conv.GenerateImage(cmd.Context(), prompt, opts.Size)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), url)
	return err
}
