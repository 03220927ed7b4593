package main

import (
	"context"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skillforge/pkg/config"
	"github.com/jingkaihe/skillforge/pkg/logger"
	"github.com/jingkaihe/skillforge/pkg/presenter"
	"github.com/jingkaihe/skillforge/pkg/session"
)

func init() {
	_ = godotenv.Load()

	viper.SetEnvPrefix("SKILLFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if base, err := config.BasePath(); err == nil {
		viper.AddConfigPath(base)
	}
	viper.AddConfigPath(".")

	config.SetDefaults(viper.GetViper())
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "fmt")
}

var rootCmd = &cobra.Command{
	Use:   "skillforge",
	Short: "Turn task descriptions into reusable, versioned skills",
	Long: `skillforge drafts a standard operating procedure (SOP) from a task description,
lets you refine it with feedback and undo, and compiles the final version into a
reusable skill: a system prompt plus an input/output schema that can be run
against new inputs.`,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				presenter.Warning("failed to read config file: " + err.Error())
			}
		}
		if err := logger.SetLogLevel(viper.GetString("log_level")); err != nil {
			presenter.Warning("invalid log level: " + err.Error())
		}
		logger.SetLogFormat(viper.GetString("log_format"))
	},
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

func main() {
	flags := rootCmd.PersistentFlags()
	flags.String("provider", "", "Completion provider (openai, anthropic, google)")
	flags.String("model", "", "Model to use (overrides config)")
	flags.String("base-url", "", "Base URL of an OpenAI-compatible endpoint")
	flags.Int("max-tokens", 0, "Maximum tokens per completion (overrides config)")
	flags.String("profile", "", "Named configuration profile to apply")
	flags.String("store", "", "Skill store backend (json, sqlite, s3)")
	flags.String("store-dir", "", "Directory of the JSON skill store")
	flags.String("prompts-dir", "", "Directory with *.tmpl prompt overrides")
	flags.String("log-level", "info", "Log level (panic, fatal, error, warn, info, debug, trace)")
	flags.String("log-format", "fmt", "Log format (fmt, json)")

	viper.BindPFlag("provider", flags.Lookup("provider"))
	viper.BindPFlag("model", flags.Lookup("model"))
	viper.BindPFlag("base_url", flags.Lookup("base-url"))
	viper.BindPFlag("max_tokens", flags.Lookup("max-tokens"))
	viper.BindPFlag("profile", flags.Lookup("profile"))
	viper.BindPFlag("store.type", flags.Lookup("store"))
	viper.BindPFlag("store.dir", flags.Lookup("store-dir"))
	viper.BindPFlag("prompts_dir", flags.Lookup("prompts-dir"))
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
	viper.BindPFlag("log_format", flags.Lookup("log-format"))

	rootCmd.AddCommand(withTracing(forgeCmd))
	rootCmd.AddCommand(skillCmd)
	rootCmd.AddCommand(withTracing(serveCmd))
	rootCmd.AddCommand(versionCmd)

	ctx := context.Background()
	shutdown, err := initTracing(ctx)
	if err != nil {
		presenter.Warning("failed to initialise tracing: " + err.Error())
	} else {
		defer shutdown(ctx)
	}

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		presenter.Error(err, "")
		os.Exit(1)
	}
}

// loadServices reads the configuration and wires the shared collaborators
func loadServices(ctx context.Context) (*session.Services, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, cfg, err
	}
	logger.G(ctx).WithField("provider", cfg.Provider).WithField("model", cfg.Model).WithField("store", cfg.Store.Type).Debug("loaded configuration")

	services, err := session.NewServices(ctx, cfg)
	if err != nil {
		return nil, cfg, err
	}
	return services, cfg, nil
}

// mustLoadServices exits the process when the services cannot be wired
func mustLoadServices(ctx context.Context) *session.Services {
	services, _, err := loadServices(ctx)
	if err != nil {
		presenter.Error(err, "Failed to initialise skillforge")
		os.Exit(1)
	}
	return services
}
