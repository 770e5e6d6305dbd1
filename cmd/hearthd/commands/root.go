// Package commands provides the CLI commands for hearthd.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pellucid/hearth/internal/logging"
)

var (
	// Version is set at build time via -ldflags.
	Version   = "0.1.0"
	BuildTime = "dev"
)

var (
	printLogs  bool
	logLevel   string
	logToFile  bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "hearthd",
	Short: "hearthd - multi-tenant conversational backend",
	Long: `hearthd brokers chat clients and LLM providers over the Model
Context Protocol, serving roles, memory, MCP tools, scheduled jobs and
file attachments behind a single HTTP API.

Run 'hearthd serve' to start the API server.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logCfg := logging.Config{
			Level:     logging.ParseLevel(logLevel),
			Output:    os.Stderr,
			Pretty:    printLogs,
			LogToFile: logToFile,
		}
		if !printLogs && !logToFile {
			logCfg.Level = logging.FatalLevel
		}
		logging.Init(logCfg)
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-file", false, "Write logs to a timestamped file in /tmp")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config overlay")

	rootCmd.SetVersionTemplate(fmt.Sprintf("hearthd %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetConfigPath returns the --config flag value.
func GetConfigPath() string {
	return configPath
}
