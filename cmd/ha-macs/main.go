// Package main provides the entry point for the ha-macs service.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/zorak1103/ha-macs/configs"
	"github.com/zorak1103/ha-macs/internal/catalog"
	"github.com/zorak1103/ha-macs/internal/config"
	"github.com/zorak1103/ha-macs/internal/dispatch"
	"github.com/zorak1103/ha-macs/internal/homeassistant"
	"github.com/zorak1103/ha-macs/internal/logging"
	"github.com/zorak1103/ha-macs/internal/reconcile"
)

// App holds the CLI application state and dependencies.
type App struct {
	v        *viper.Viper
	cfgFile  string
	haURL    string
	haToken  string
	port     int
	logLevel string
	initDir  string
	services bool
	rootCmd  *cobra.Command
}

// NewApp creates a new CLI application instance with all dependencies.
func NewApp() *App {
	app := &App{v: viper.New()}
	app.rootCmd = app.buildRootCmd()
	app.setupFlags()
	app.addCommands()
	return app
}

func (a *App) buildRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ha-macs",
		Short: "Companion service for the M.A.C.S. dashboard card",
		Long: `ha-macs runs next to Home Assistant and owns the M.A.C.S. entities:
character mood, weather conditions, brightness, battery and animation state.

Entities are exposed through MQTT discovery and persisted in SQLite.
Service calls are accepted over MQTT topics and an MCP endpoint, and the
dashboard card bundle is served under /macs/.`,
		SilenceUsage: true,
		RunE:         a.run,
	}
}

func (a *App) setupFlags() {
	flags := a.rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: none, defaults and environment only)")
	flags.StringVar(&a.haURL, "ha-url", "", "Home Assistant URL")
	flags.StringVar(&a.haToken, "ha-token", "", "Home Assistant long-lived access token")
	flags.IntVar(&a.port, "port", 0, "HTTP server port (MCP endpoint and card bundle)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (TRACE, DEBUG, INFO, WARN, ERROR)")

	a.bindPFlag("homeassistant.url", flags.Lookup("ha-url"))
	a.bindPFlag("homeassistant.token", flags.Lookup("ha-token"))
	a.bindPFlag("server.port", flags.Lookup("port"))
	a.bindPFlag("logging.level", flags.Lookup("log-level"))
}

func (a *App) addCommands() {
	a.rootCmd.AddCommand(a.buildConfigCmd())
	a.rootCmd.AddCommand(a.buildInitCmd())
	a.rootCmd.AddCommand(a.buildCatalogCmd())
	a.rootCmd.AddCommand(a.buildReconcileCmd())
}

func (a *App) buildConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Display the effective configuration",
		Long: `Display the effective configuration with sensitive data masked.

This shows the configuration the service would start with, including values
from the config file, environment variables, and CLI flags. The Home
Assistant token and MQTT password are masked.`,
		RunE: a.runConfig,
	}
}

func (a *App) buildInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration files",
		Long: `Create configuration files in the target directory.

This command creates:
  - config.yaml: YAML configuration file
  - .env: Environment variables file

Existing files are never overwritten.`,
		RunE: a.runInit,
	}
	cmd.Flags().StringVar(&a.initDir, "dir", ".", "directory to write the files to")
	return cmd
}

func (a *App) buildCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the entity catalog as YAML",
		Long: `Print every M.A.C.S. entity with its kind, canonical entity id,
default state and allowed values. With --services the service table is
printed instead.`,
		RunE: a.runCatalog,
	}
	cmd.Flags().BoolVar(&a.services, "services", false, "print the service table instead of the entities")
	return cmd
}

func (a *App) buildReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run startup reconciliation once and exit",
		Long: `Connect to Home Assistant, migrate drifted M.A.C.S. entity ids back to
their canonical form and register the card bundle as a Lovelace resource.`,
		RunE: a.runReconcile,
	}
}

func (a *App) runInit(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	created := 0

	for _, f := range []struct {
		name    string
		content []byte
	}{
		{"config.yaml", configs.ConfigYAML},
		{".env", configs.EnvExample},
	} {
		wasCreated, err := writeConfigFile(out, filepath.Join(a.initDir, f.name), f.content)
		if err != nil {
			return err
		}
		if wasCreated {
			created++
		}
	}

	if created == 0 {
		_, _ = fmt.Fprintln(out, "All configuration files already exist. Nothing to do.")
		return nil
	}

	_, _ = fmt.Fprintf(out, "Created %d configuration file(s).\n", created)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Edit config.yaml or .env with your Home Assistant and MQTT settings")
	_, _ = fmt.Fprintln(out, "  2. Run 'ha-macs config' to verify your configuration")
	_, _ = fmt.Fprintln(out, "  3. Run 'ha-macs' to start the service")
	return nil
}

// writeConfigFile writes content to path unless it already exists.
// Returns true if the file was created.
func writeConfigFile(out io.Writer, path string, content []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		_, _ = fmt.Fprintf(out, "Skipping %s (already exists)\n", path)
		return false, nil
	}

	if err := os.WriteFile(path, content, 0o600); err != nil {
		return false, fmt.Errorf("writing %s: %w", path, err)
	}

	_, _ = fmt.Fprintf(out, "Created %s\n", path)
	return true, nil
}

func (a *App) runConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadForDisplay(a.v, a.cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	masked := cfg.MaskedConfig()

	out := cmd.OutOrStdout()
	p := func(format string, args ...any) { _, _ = fmt.Fprintf(out, format, args...) }

	p("Effective Configuration\n")
	p("=======================\n\n")
	p("Home Assistant:\n")
	p("  URL:   %s\n", masked.HomeAssistant.URL)
	p("  Token: %s\n\n", masked.HomeAssistant.Token)
	p("MQTT:\n")
	p("  Broker:           %s\n", masked.MQTT.BrokerURL())
	p("  Username:         %s\n", masked.MQTT.Username)
	p("  Password:         %s\n", masked.MQTT.Password)
	p("  Client ID:        %s\n", masked.MQTT.ClientID)
	p("  QoS:              %d\n", masked.MQTT.QoS)
	p("  Discovery prefix: %s\n", masked.MQTT.DiscoveryPrefix)
	p("  Base topic:       %s\n\n", masked.MQTT.BaseTopic)
	p("Store:\n")
	p("  Path:     %s\n", masked.Store.Path)
	p("  WAL mode: %t\n\n", masked.Store.WALMode)
	p("Server:\n")
	p("  Port: %d\n\n", masked.Server.Port)
	p("Frontend:\n")
	p("  WWW dir:       %s\n", masked.Frontend.WWWDir)
	p("  Public URL:    %s\n", masked.Frontend.PublicURL)
	p("  Version:       %s\n", reconcile.Version(masked.Frontend.Version))
	p("  Sync resource: %t\n\n", masked.Frontend.SyncResource)
	p("Logging:\n")
	p("  Level: %s\n", masked.Logging.Level)
	return nil
}

type serviceRow struct {
	Name     string `yaml:"name"`
	Argument string `yaml:"argument"`
	Target   string `yaml:"target"`
	Kind     string `yaml:"kind"`
}

func (a *App) runCatalog(cmd *cobra.Command, _ []string) error {
	c := catalog.Default()

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()

	if a.services {
		services := dispatch.BuildServices(c)
		rows := make([]serviceRow, 0, len(services))
		for _, s := range services {
			rows = append(rows, serviceRow{
				Name:     s.Name,
				Argument: s.Arg,
				Target:   s.Target,
				Kind:     string(s.Definition().Kind()),
			})
		}
		return enc.Encode(map[string]any{"services": rows})
	}
	return enc.Encode(map[string]any{"entities": c.Snapshot()})
}

func (a *App) runReconcile(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadWithViper(a.v, a.cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := newLogger(cfg.Logging.Level, cmd.ErrOrStderr())

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	ha, err := homeassistant.NewConnectedWSClient(ctx, cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, &homeassistant.WSClientConfig{
		ReconnectConfig: homeassistant.DefaultReconnectConfig(),
	})
	if err != nil {
		return fmt.Errorf("connecting to Home Assistant: %w", err)
	}
	defer func() { _ = ha.Close() }()

	r := reconcile.New(ha, catalog.Default(), reconcileOptions(cfg), logger)
	result, err := r.Run(ctx)
	if result != nil {
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		_ = enc.Encode(result)
		_ = enc.Close()
	}
	return err
}

func reconcileOptions(cfg *config.Config) reconcile.Options {
	return reconcile.Options{
		PublicURL:    cfg.Frontend.PublicURL,
		Version:      cfg.Frontend.Version,
		SyncResource: cfg.Frontend.SyncResource,
	}
}

func newLogger(level string, out io.Writer) *logging.Logger {
	logLevel, err := logging.ParseLevel(level)
	if err != nil {
		log.Printf("Warning: invalid log level %q, using INFO", level)
		logLevel = logging.LevelInfo
	}
	return logging.NewWithWriter(logLevel, out)
}

// Execute runs the CLI application.
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

// bindPFlag binds a flag to the app's viper instance and logs an error if
// binding fails.
func (a *App) bindPFlag(key string, flag *pflag.Flag) {
	if err := a.v.BindPFlag(key, flag); err != nil {
		log.Printf("warning: failed to bind flag %s: %v", key, err)
	}
}

func main() {
	app := NewApp()
	if err := app.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
