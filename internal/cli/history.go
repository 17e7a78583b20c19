package cli

import (
	"fmt"

	"chatctl/internal/config"
	"chatctl/internal/history"
	"chatctl/internal/llm"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type historyOptions struct {
	Session string
	Format  string
}

func newHistoryCmd() *cobra.Command {
	opts := &historyOptions{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect stored chat sessions",
	}
	cmd.PersistentFlags().StringVar(&opts.Session, "session", "", "history session name")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the messages of a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryShow(cmd, opts)
		},
	}
	show.Flags().StringVar(&opts.Format, "format", "text", "output format: text, json or yaml")

	cmd.AddCommand(show)
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryClear(cmd, opts)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryList(cmd)
		},
	})
	return cmd
}

func openHistory() (history.Store, config.HistoryConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, cfg.History, err
	}
	if cfg.History.Path == "" {
		return nil, cfg.History, usagef("history.path is not configured")
	}
	store, err := history.Open(cfg.History.Path)
	return store, cfg.History, err
}

func runHistoryShow(cmd *cobra.Command, opts *historyOptions) error {
	switch opts.Format {
	case "text", "json", "yaml":
	default:
		return usagef("unsupported format: %s", opts.Format)
	}
	store, cfg, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	msgs, err := store.Load(cmd.Context(), firstNonEmpty(opts.Session, cfg.Name))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch opts.Format {
	case "json":
		return llm.EncodeMessages(out, msgs)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(msgs); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return llm.PrintMessages(out, msgs)
	}
}

func runHistoryClear(cmd *cobra.Command, opts *historyOptions) error {
	store, cfg, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	name := firstNonEmpty(opts.Session, cfg.Name)
	if err := store.Delete(cmd.Context(), name); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", name)
	return err
}

func runHistoryList(cmd *cobra.Command) error {
	store, _, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	names, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
			return err
		}
	}
	return nil
}
