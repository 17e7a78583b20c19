package cli

import (
	"fmt"
	"os"
	"strings"

	"chatctl/internal/config"
	"chatctl/internal/llm"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Options struct {
	Config  string
	Verbose bool
}

func NewRootCmd() *cobra.Command {
	opts := &Options{}
	root := &cobra.Command{
		Use:           "chatctl",
		Short:         "chatctl - chat completion client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			initConfig(opts.Config)
			return initLogger(viper.GetBool("log.verbose"))
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = llm.Logger().Sync()
		},
	}

	root.PersistentFlags().StringVar(
		&opts.Config,
		"config",
		"",
		"config file (default: ./chatctl.yaml)",
	)
	root.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging to stderr")
	_ = viper.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log.verbose", root.PersistentFlags().Lookup("verbose"))

	root.AddCommand(newChatCmd())
	root.AddCommand(newPingCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newModelsCmd())
	root.AddCommand(newImageCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func initConfig(configFile string) {
	config.SetDefaults(viper.GetViper())
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("chatctl")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/chatctl")
	}

	viper.SetEnvPrefix("CHATCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintln(os.Stderr, err.Error())
		}
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		_ = llm.SetDefaultCredential(key)
	}
}

func initLogger(verbose bool) error {
	var (
		logger *zap.Logger
		err    error
	)
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		cfg.OutputPaths = []string{"stderr"}
		logger, err = cfg.Build()
	}
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	llm.SetLogger(logger)
	return nil
}
