package main

import (
	"fmt"
	"os"

	"github.com/openchami/realmgate/pkg/config"
	"github.com/openchami/realmgate/pkg/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "unknown"
)

var (
	configPath string
	v          = config.NewViper()
)

var rootCmd = &cobra.Command{
	Use:   "realmgate",
	Short: "Realmgate - identity gateway for Keycloak realms",
	Long: `Realmgate validates realm tokens, augments them with roles and UMA
permissions, and guards an admin API that proxies to the identity provider.`,
	SilenceUsage: true,
}

var generateConfigCmd = &cobra.Command{
	Use:   "generate-config",
	Short: "Generate a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = "realmgate.yaml"
		}
		if err := config.Save(config.Default(), path); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Printf("Generated configuration file at: %s\n", path)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("realmgate %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.AddCommand(generateConfigCmd)
	rootCmd.AddCommand(versionCmd)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (json, console)")
	bindFlags(rootCmd.PersistentFlags(), map[string]string{
		"log.level":  "log-level",
		"log.format": "log-format",
	})
}

// loadConfig resolves flags, environment and the config file, then
// configures logging from the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(v, configPath)
	if err != nil {
		return nil, err
	}
	cfg.Log.Version = version
	logging.Configure(&cfg.Log)
	return cfg, nil
}

// bindFlags ties configuration keys to flags. A flag only overrides the
// environment and config file when it was set explicitly.
func bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", name, err))
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
