package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MarcoPoloResearchLab/roomsync/internal/config"
)

var (
	cfgFile string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "roomsync",
		Short:         "Local-first room sync for the seating, task board and workout apps",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(
		newRelayCommand(),
		newWatchCommand(),
		newShowCommand(),
		newImportCommand(),
		newSnapshotCommand(),
		newHistoryCommand(),
		newRestoreCommand(),
		newExportCommand(),
		newNameCommand(),
	)
	return rootCmd
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("relay-url", defaults.GetString("relay.url"), "Relay base URL; empty keeps the app local-only")
	cmd.PersistentFlags().String("local-path", defaults.GetString("local.path"), "SQLite file holding local app state")
	cmd.PersistentFlags().String("app", defaults.GetString("app"), "Application (seating, taskboard, workout)")
	cmd.PersistentFlags().String("room", defaults.GetString("room"), "Room code to join")
	cmd.PersistentFlags().Duration("sync-timeout", defaults.GetDuration("sync.timeout"), "Timeout for joining a room")

	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "relay.url", "relay-url")
	bindFlag(cmd, "local.path", "local-path")
	bindFlag(cmd, "app", "app")
	bindFlag(cmd, "room", "room")
	bindFlag(cmd, "sync.timeout", "sync-timeout")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}
