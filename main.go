package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	configFile string
	ctyFile    string

	rootCmd = &cobra.Command{
		Use:   "sparkclient",
		Short: "Control-plane client for SparkSDR servers",
		Long: `sparkclient connects to a SparkSDR websocket server, mirrors its radios
and receivers, collects decoded spots and enriches them with country,
callsign lookup and logbook cross-check data.`,
		SilenceUsage: true,
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the client with the local API",
		RunE:  runClient,
	}
	lookupCmd = &cobra.Command{
		Use:   "lookup [callsign]",
		Short: "Resolve a callsign against the CTY table and the lookup service",
		Args:  cobra.ExactArgs(1),
		RunE:  runLookup,
	}
	importCmd = &cobra.Command{
		Use:   "import [file]",
		Short: "Parse an ADIF log and print what would be imported",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sparkclient %s\n", AppVersion)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config.yaml")
	lookupCmd.Flags().StringVar(&ctyFile, "cty", "", "cty.dat to use instead of the configured table")
	importCmd.Flags().StringVar(&ctyFile, "cty", "", "cty.dat to use instead of the configured table")

	rootCmd.AddCommand(runCmd, lookupCmd, importCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads --config, or returns the defaults when it is not set
func loadConfig() (*Config, error) {
	if configFile == "" {
		return DefaultConfig(), nil
	}
	return LoadConfig(configFile)
}

func loadCTY(cfg *Config) (*CTYDatabase, error) {
	path := cfg.CTY.Path
	if ctyFile != "" {
		path = ctyFile
	}
	return LoadCTYDatabase(path)
}

func runClient(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ConfigureLogging(cfg.Logging, os.Stderr)
	log := NewLogger("main")
	log.WithField("version", AppVersion).Info("Starting sparkclient")

	cty, err := loadCTY(cfg)
	if err != nil {
		return fmt.Errorf("failed to load CTY database: %w", err)
	}
	entities, prefixes := cty.EntityCount()
	log.WithFields(logrus.Fields{"entities": entities, "prefixes": prefixes}).Info("CTY database loaded")

	metrics := NewPrometheusMetrics()

	deps := ModelDeps{CTY: cty, Metrics: metrics}
	if cfg.Lookup.Enabled {
		deps.Lookup = NewHTTPCallsignLookup(cfg.Lookup.BaseURL,
			time.Duration(cfg.Lookup.Timeout)*time.Second, cfg.Lookup.RateLimit, cfg.Lookup.Burst)
	}

	var mqttPublisher *MQTTPublisher
	if cfg.MQTT.Enabled {
		mqttPublisher, err = NewMQTTPublisher(&cfg.MQTT, metrics.Registry())
		if err != nil {
			return err
		}
		defer mqttPublisher.Disconnect()
		deps.Publisher = mqttPublisher
	}

	model := NewModel(cfg, deps)
	conn := NewConnectionManager(WebsocketDialer(time.Duration(cfg.SparkSDR.HandshakeTimeout)*time.Second), model.Post, metrics)
	model.SetConnection(conn)

	if cfg.Logbook.Path != "" {
		data, err := os.ReadFile(cfg.Logbook.Path)
		if err != nil {
			log.WithError(err).WithField("path", cfg.Logbook.Path).Warn("Failed to read logbook")
		} else if err := model.ImportLog(filepath.Base(cfg.Logbook.Path), data); err != nil {
			log.WithError(err).Warn("Initial logbook import failed")
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return model.Run(ctx) })
	g.Go(func() error {
		metrics.StartResourceUpdater(ctx, 15*time.Second)
		return nil
	})
	g.Go(func() error {
		RunVersionChecker(ctx, cfg.VersionCheck)
		return nil
	})
	if mqttPublisher != nil {
		g.Go(func() error {
			mqttPublisher.Run(ctx)
			return nil
		})
	}
	if cfg.Logbook.Path != "" && cfg.Logbook.Watch {
		watcher := NewLogbookWatcher(cfg.Logbook.Path, model.Dispatch)
		g.Go(func() error { return watcher.Run(ctx) })
	}
	if cfg.Server.Listen != "" {
		var mcpHandler http.Handler
		if cfg.MCP.Enabled {
			mcpHandler = NewMCPServer(model, cty)
		}
		api := NewAPIServer(cfg, model, cty, metrics, mcpHandler)
		g.Go(func() error { return api.Run(ctx) })
	}

	err = g.Wait()
	log.Info("Shutdown complete")
	return err
}

func runLookup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ConfigureLogging(cfg.Logging, os.Stderr)

	cty, err := loadCTY(cfg)
	if err != nil {
		return fmt.Errorf("failed to load CTY database: %w", err)
	}

	call := NewCall(args[0], cty)
	out := CallsignResponse{Callsign: call.Callsign, CTY: cty.LookupCallsignFull(call.Callsign)}

	if cfg.Lookup.Enabled {
		lookup := NewHTTPCallsignLookup(cfg.Lookup.BaseURL,
			time.Duration(cfg.Lookup.Timeout)*time.Second, cfg.Lookup.RateLimit, cfg.Lookup.Burst)
		enriched, err := lookup.Lookup(cmd.Context(), call)
		info := CallsignInfo{State: CallsignFound, Call: enriched, RequestedAt: time.Now()}
		if err != nil {
			NewLogger("lookup").WithError(err).Warn("Lookup failed")
			info = CallsignInfo{State: CallsignNotFound, Call: call, RequestedAt: info.RequestedAt}
		}
		out.Cache = &info
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ConfigureLogging(cfg.Logging, os.Stderr)

	cty, err := loadCTY(cfg)
	if err != nil {
		return fmt.Errorf("failed to load CTY database: %w", err)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read log: %w", err)
	}
	imp, err := LoadLogData(filepath.Base(args[0]), data, cty)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d entries, %d skipped, %d countries, %d states\n",
		imp.Name, len(imp.Entries), len(imp.Errors), len(imp.countries), len(imp.states))
	for _, recErr := range imp.Errors {
		fmt.Fprintf(out, "  skipped: %v\n", recErr)
	}
	return nil
}
