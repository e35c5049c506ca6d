// internal/cli/root.go
package supportbot

import (
	"fmt"
	"os"

	"github.com/mwiater/supportbot/internal/appconfig"
	"github.com/mwiater/supportbot/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile       string
	envFile       string
	v             = appconfig.NewViper()
	currentConfig *appconfig.Config
	appVersion    = "dev"
	appCommit     = "none"
	appDate       = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:          "supportbot",
	Short:        "supportbot serves, demos and evaluates a fine-tuned customer support model",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		currentConfig = &cfg

		if err := logging.Init(logging.Options{
			Dir:    cfg.LogDir,
			Level:  logLevel(cfg),
			Format: cfg.LogFormat,
		}); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", appVersion, appCommit, appDate)

	defer logging.Close()
	if err := rootCmd.Execute(); err != nil {
		logging.Close()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", appconfig.DefaultConfigPath, "config file (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file loaded before SUPPORTBOT_* variables are read")

	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("logDir", "", "directory for per-day log files")
	rootCmd.PersistentFlags().String("logLevel", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("logFormat", "", "console log format (console or json)")
	rootCmd.PersistentFlags().String("backend", "", "model server type (llama.cpp or ollama)")
	rootCmd.PersistentFlags().String("backendURL", "", "model server base URL")

	bindFlag("debug", "debug")
	bindFlag("logDir", "logDir")
	bindFlag("logLevel", "logLevel")
	bindFlag("logFormat", "logFormat")
	bindFlag("backend.type", "backend")
	bindFlag("backend.url", "backendURL")
}

// bindFlag binds a persistent flag to a config key. viper prefers the flag only once it has been set,
// so the empty flag defaults never hide config file values.
func bindFlag(key, name string) {
	_ = v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(name))
}

// loadConfig merges defaults, the config file, the env file, SUPPORTBOT_* variables and flags.
func loadConfig() (appconfig.Config, error) {
	if err := appconfig.LoadEnv(envFile); err != nil {
		return appconfig.Config{}, err
	}
	if err := appconfig.ReadConfigFile(v, cfgFile); err != nil {
		return appconfig.Config{}, err
	}
	cfg, err := appconfig.FromViper(v)
	if err != nil {
		return appconfig.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return appconfig.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func logLevel(cfg appconfig.Config) string {
	if cfg.Debug {
		return "debug"
	}
	return cfg.LogLevel
}

// GetConfig returns the loaded application configuration for other packages.
func GetConfig() *appconfig.Config {
	return currentConfig
}

// SetVersionInfo allows the main package to inject build-time variables.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}
