package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/bryanchriswhite/TaskSwitcher/internal/config"
	"github.com/bryanchriswhite/TaskSwitcher/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	prettyLogs bool
	rootCmd    = &cobra.Command{
		Use:   "taskswitcher",
		Short: "TaskSwitcher - restore the windows and tabs of a task",
		Long: `TaskSwitcher groups application windows and browser tabs into tasks and
brings them all to the front when you switch to a task.

Features:
  • Enumerate windows through a helper, AppleScript, X11 or KWin
  • Remember recently seen windows on other desktops
  • Activate windows with a chain of fallback strategies
  • Find and focus browser tabs through a local extension relay
  • Persistent task storage in SQLite
  • REST API and Prometheus metrics`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(viper.GetString("log_level"), prettyLogs)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/taskswitcher/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "API server port (default is 8080)")
	rootCmd.PersistentFlags().Int("relay-port", 0, "browser extension relay port (default is 9876)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&prettyLogs, "pretty", true, "human readable log output")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("relay_port", rootCmd.PersistentFlags().Lookup("relay-port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	viper.SetEnvPrefix("TASKSWITCHER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if dir, err := config.DefaultConfigDir(); err == nil {
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}
	// A missing file is created by config.NewManager.
	_ = viper.ReadInConfig()
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig reads the config file and applies flag and environment
// overrides for this run without persisting them.
func loadConfig() (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()
	if port := viper.GetInt("server_port"); port > 0 {
		cfg.ServerPort = port
	}
	if port := viper.GetInt("relay_port"); port > 0 {
		cfg.RelayPort = port
	}
	if level := viper.GetString("log_level"); level != "" {
		cfg.LogLevel = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger.Init(cfg.LogLevel, prettyLogs)
	return configMgr, cfg, nil
}
