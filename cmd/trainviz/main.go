// Package main provides the CLI entrypoint for trainviz.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/trainviz/internal/client"
	"github.com/verte-zerg/trainviz/internal/config"
	"github.com/verte-zerg/trainviz/internal/generator"
	"github.com/verte-zerg/trainviz/internal/model"
	"github.com/verte-zerg/trainviz/internal/playback"
	"github.com/verte-zerg/trainviz/internal/server"
	"github.com/verte-zerg/trainviz/internal/stats"
	"github.com/verte-zerg/trainviz/internal/store"
	"github.com/verte-zerg/trainviz/internal/tui"
)

const (
	defaultAPIURL       = "http://localhost:3001"
	defaultAddr         = ":3001"
	defaultSpeedMs      = 200
	defaultLatencyMinMs = 300
	defaultLatencyMaxMs = 500
	defaultCORSOrigin   = "*"
	defaultRequestsLast = 20
	defaultPlotHeight   = 12
)

var (
	dashAPIURL       string
	dashEpochs       int
	dashLearningRate float64
	dashBatchSize    int
	dashSpeedMs      int

	serveAddr         string
	serveLatencyMinMs int
	serveLatencyMaxMs int
	serveCORSOrigin   string
	serveJournal      bool
	serveSeed         int64
	serveQuiet        bool

	simEpochs       int
	simLearningRate float64
	simBatchSize    int
	simSeed         int64
	simNoNoise      bool
	simFormat       string
	simWindow       int

	requestsLast    int
	requestsSince   string
	requestsStatus  int
	requestsSlowest int

	healthAPIURL string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "trainviz",
		Short:         "Simulated neural network training visualizer",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runDashboardCmd,
	}

	rootCmd.Flags().StringVar(&dashAPIURL, "api-url", defaultAPIURL, "simulation server URL")
	rootCmd.Flags().IntVar(&dashEpochs, "epochs", model.DefaultEpochs, "epochs to simulate (1-200)")
	rootCmd.Flags().Float64Var(&dashLearningRate, "learning-rate", model.DefaultLearningRate, "learning rate (0-1]")
	rootCmd.Flags().IntVar(&dashBatchSize, "batch-size", model.DefaultBatchSize, "batch size (16, 32, 64, 128, 256)")
	rootCmd.Flags().IntVar(&dashSpeedMs, "speed-ms", defaultSpeedMs, "milliseconds per revealed epoch (20-500)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(newRequestsCmd())
	rootCmd.AddCommand(newHealthCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func loadFileConfig() (config.FileConfig, error) {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return config.FileConfig{}, fmt.Errorf("failed to load config: %w", err)
	}
	return fileCfg, nil
}

func runDashboardCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return err
	}
	applyStringConfig(cmd, "api-url", &dashAPIURL, fileCfg.Dashboard.APIURL)
	applyIntConfig(cmd, "epochs", &dashEpochs, fileCfg.Dashboard.Epochs)
	applyFloatConfig(cmd, "learning-rate", &dashLearningRate, fileCfg.Dashboard.LearningRate)
	applyIntConfig(cmd, "batch-size", &dashBatchSize, fileCfg.Dashboard.BatchSize)
	applyIntConfig(cmd, "speed-ms", &dashSpeedMs, fileCfg.Dashboard.SpeedMs)

	if err := validateDashboardConfig(dashAPIURL, dashSpeedMs); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	api := client.New(dashAPIURL)
	seq := playback.New(api,
		playback.WithSpeed(time.Duration(dashSpeedMs)*time.Millisecond),
		playback.WithParams(model.TrainingParams{
			Epochs:       dashEpochs,
			LearningRate: dashLearningRate,
			BatchSize:    dashBatchSize,
		}),
	)
	defer seq.Close()

	dashboard := tui.NewModel(ctx, seq)
	program := tea.NewProgram(dashboard, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the curve generation server",
		Args:  cobra.NoArgs,
		RunE:  runServeCmd,
	}
	cmd.Flags().StringVar(&serveAddr, "addr", defaultAddr, "listen address")
	cmd.Flags().IntVar(&serveLatencyMinMs, "latency-min-ms", defaultLatencyMinMs, "minimum artificial response delay")
	cmd.Flags().IntVar(&serveLatencyMaxMs, "latency-max-ms", defaultLatencyMaxMs, "maximum artificial response delay")
	cmd.Flags().StringVar(&serveCORSOrigin, "cors-origin", defaultCORSOrigin, "Access-Control-Allow-Origin value")
	cmd.Flags().BoolVar(&serveJournal, "journal", true, "record requests in the local journal")
	cmd.Flags().Int64Var(&serveSeed, "seed", 0, "noise seed (0 seeds from time)")
	cmd.Flags().BoolVar(&serveQuiet, "quiet", false, "disable access logs")
	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return err
	}
	applyStringConfig(cmd, "addr", &serveAddr, fileCfg.Server.Addr)
	applyIntConfig(cmd, "latency-min-ms", &serveLatencyMinMs, fileCfg.Server.LatencyMinMs)
	applyIntConfig(cmd, "latency-max-ms", &serveLatencyMaxMs, fileCfg.Server.LatencyMaxMs)
	applyStringConfig(cmd, "cors-origin", &serveCORSOrigin, fileCfg.Server.CORSOrigin)
	applyBoolConfig(cmd, "journal", &serveJournal, fileCfg.Server.Journal)

	if err := validateServeConfig(serveAddr, serveLatencyMinMs, serveLatencyMaxMs); err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	seed := serveSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	opts := server.Options{
		Generator:  generator.NewWithSeed(seed),
		CORSOrigin: serveCORSOrigin,
		ErrorLog:   log.New(os.Stderr, "trainviz: ", log.LstdFlags),
	}
	if serveLatencyMaxMs > 0 {
		opts.Latency = server.UniformLatency(
			time.Duration(serveLatencyMinMs)*time.Millisecond,
			time.Duration(serveLatencyMaxMs)*time.Millisecond,
			seed,
		)
	}
	if !serveQuiet {
		opts.AccessLog = os.Stderr
	}

	if serveJournal {
		st, err := store.Open(config.DefaultJournalPath())
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer func() {
			if cerr := st.Close(); cerr != nil {
				logErrf("failed to close journal: %v\n", cerr)
			}
		}()
		opts.Journal = st
	}

	srv, err := server.New(opts)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logErrf("Training simulation server listening on %s\n", serveAddr)
	if err := srv.ListenAndServe(ctx, serveAddr); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	logErrln("Server stopped")
	return nil
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Generate a curve locally and print it",
		Args:  cobra.NoArgs,
		RunE:  runSimulateCmd,
	}
	cmd.Flags().IntVar(&simEpochs, "epochs", model.DefaultEpochs, "epochs to simulate (1-200)")
	cmd.Flags().Float64Var(&simLearningRate, "learning-rate", model.DefaultLearningRate, "learning rate (0-1]")
	cmd.Flags().IntVar(&simBatchSize, "batch-size", model.DefaultBatchSize, "batch size (16, 32, 64, 128, 256)")
	cmd.Flags().Int64Var(&simSeed, "seed", 0, "noise seed (0 seeds from time)")
	cmd.Flags().BoolVar(&simNoNoise, "no-noise", false, "disable noise")
	cmd.Flags().StringVar(&simFormat, "format", "table", "output format: table, plot, json, yaml")
	cmd.Flags().IntVar(&simWindow, "window", 1, "moving average window for plots")
	return cmd
}

type simulation struct {
	Params model.TrainingParams `json:"params" yaml:"params"`
	Data   []model.EpochRecord  `json:"data" yaml:"data"`
}

func runSimulateCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return err
	}
	applyIntConfig(cmd, "epochs", &simEpochs, fileCfg.Dashboard.Epochs)
	applyFloatConfig(cmd, "learning-rate", &simLearningRate, fileCfg.Dashboard.LearningRate)
	applyIntConfig(cmd, "batch-size", &simBatchSize, fileCfg.Dashboard.BatchSize)

	params := model.TrainingParams{Epochs: simEpochs, LearningRate: simLearningRate, BatchSize: simBatchSize}
	if err := params.Validate(); err != nil {
		return err
	}
	if simWindow < 1 {
		return fmt.Errorf("--window must be >= 1")
	}

	var genOpts []generator.Option
	if simNoNoise {
		genOpts = append(genOpts, generator.WithNoise(0))
	}
	var gen *generator.Generator
	if simSeed != 0 {
		gen = generator.NewWithSeed(simSeed, genOpts...)
	} else {
		gen = generator.New(genOpts...)
	}
	return writeSimulation(cmd.OutOrStdout(), simFormat, params, gen.Generate(params), simWindow)
}

func writeSimulation(w io.Writer, format string, params model.TrainingParams, data []model.EpochRecord, window int) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "table":
		if err := stats.RenderSummary(w, params, data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		if err := stats.RenderEpochTable(w, data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	case "plot":
		if err := stats.RenderSummary(w, params, data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		if err := stats.RenderCurves(w, data, window, 0, defaultPlotHeight, false); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(simulation{Params: params, Data: data}); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(simulation{Params: params, Data: data}); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
	default:
		return fmt.Errorf("unknown --format %q (use table, plot, json or yaml)", format)
	}
	return nil
}

func newRequestsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "Show journaled training requests",
		Args:  cobra.NoArgs,
		RunE:  runRequestsCmd,
	}
	cmd.Flags().IntVar(&requestsLast, "last", defaultRequestsLast, "limit to last N requests (0 for all)")
	cmd.Flags().StringVar(&requestsSince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&requestsStatus, "status", 0, "only show this HTTP status")
	cmd.Flags().IntVar(&requestsSlowest, "slowest", 0, "also list the N slowest requests")
	return cmd
}

func runRequestsCmd(cmd *cobra.Command, _ []string) error {
	filter := model.RequestFilter{Last: requestsLast, Status: requestsStatus}
	if requestsSince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", requestsSince, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		filter.Since = &parsed
	}
	if requestsLast < 0 {
		return fmt.Errorf("--last must be >= 0")
	}

	path := config.DefaultJournalPath()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			logErrln("No journal found. Requests are recorded by: trainviz serve")
			return nil
		}
		return fmt.Errorf("failed to stat journal: %w", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close journal: %v\n", cerr)
		}
	}()

	report, err := stats.BuildReport(cmd.Context(), st, filter, requestsSlowest)
	if err != nil {
		return fmt.Errorf("failed to load journal: %w", err)
	}
	if err := report.Render(cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the simulation server",
		Args:  cobra.NoArgs,
		RunE:  runHealthCmd,
	}
	cmd.Flags().StringVar(&healthAPIURL, "api-url", defaultAPIURL, "simulation server URL")
	return cmd
}

func runHealthCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return err
	}
	applyStringConfig(cmd, "api-url", &healthAPIURL, fileCfg.Dashboard.APIURL)

	h, err := client.New(healthAPIURL, client.WithTimeout(5*time.Second)).Health(cmd.Context())
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	serverTime := time.UnixMilli(h.Timestamp).Local().Format(time.RFC3339)
	if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s (server time %s)\n", h.Status, serverTime); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil || cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil || cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil || cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil || cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# trainviz configuration
# Uncomment a value to enable it. CLI flags override config values.

[server]
# addr = %q             # Listen address for trainviz serve
# latency-min-ms = %d      # Minimum artificial response delay
# latency-max-ms = %d      # Maximum artificial response delay (0 disables)
# cors-origin = %q          # Access-Control-Allow-Origin value
# journal = true             # Record requests in the local journal

[dashboard]
# api-url = %q   # Simulation server URL
# epochs = %d                 # Epochs to simulate (1-200)
# learning-rate = %g        # Learning rate (0-1]
# batch-size = %d             # 16, 32, 64, 128 or 256
# speed-ms = %d              # Milliseconds per revealed epoch (20-500)
`,
		defaultAddr,
		defaultLatencyMinMs,
		defaultLatencyMaxMs,
		defaultCORSOrigin,
		defaultAPIURL,
		model.DefaultEpochs,
		model.DefaultLearningRate,
		model.DefaultBatchSize,
		defaultSpeedMs,
	)
}

func validateDashboardConfig(apiURL string, speedMs int) error {
	if strings.TrimSpace(apiURL) == "" {
		return fmt.Errorf("--api-url must not be empty")
	}
	speed := time.Duration(speedMs) * time.Millisecond
	if speed < tui.MinSpeed || speed > tui.MaxSpeed {
		return fmt.Errorf("--speed-ms must be between %d and %d", tui.MinSpeed.Milliseconds(), tui.MaxSpeed.Milliseconds())
	}
	return nil
}

func validateServeConfig(addr string, latencyMinMs, latencyMaxMs int) error {
	if strings.TrimSpace(addr) == "" {
		return fmt.Errorf("--addr must not be empty")
	}
	if latencyMinMs < 0 || latencyMaxMs < 0 {
		return fmt.Errorf("--latency-min-ms and --latency-max-ms must be >= 0")
	}
	if latencyMaxMs > 0 && latencyMinMs > latencyMaxMs {
		return fmt.Errorf("--latency-min-ms must not exceed --latency-max-ms")
	}
	return nil
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
