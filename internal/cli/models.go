package cli

import (
	"fmt"

	"chatctl/internal/config"

	"github.com/spf13/cobra"
)

type modelsOptions struct {
	connOptions
	Check string
}

func newModelsCmd() *cobra.Command {
	opts := &modelsOptions{}
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models served by the endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModels(cmd, opts)
		},
	}
	opts.register(cmd.Flags())
	cmd.Flags().StringVar(&opts.Check, "check", "", "only report whether this model is served")
	return cmd
}

func runModels(cmd *cobra.Command, opts *modelsOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	conv, err := newConversation(cfg.LLM, &opts.connOptions)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if opts.Check != "" {
		ok, err := conv.ModelAvailable(cmd.Context(), opts.Check)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("model %s is not available", opts.Check)
		}
		_, err = fmt.Fprintf(out, "%s is available\n", opts.Check)
		return err
	}

	ids, err := conv.ListModels(cmd.Context())
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := fmt.Fprintln(out, id); err != nil {
			return err
		}
	}
	return nil
}
