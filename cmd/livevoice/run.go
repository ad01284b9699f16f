package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/AltairaLabs/livevoice/config"
	"github.com/AltairaLabs/livevoice/device"
	"github.com/AltairaLabs/livevoice/events"
	"github.com/AltairaLabs/livevoice/gemini"
	"github.com/AltairaLabs/livevoice/logger"
	metrics "github.com/AltairaLabs/livevoice/metrics/prometheus"
	"github.com/AltairaLabs/livevoice/session"
	"github.com/AltairaLabs/livevoice/telemetry"
	"github.com/AltairaLabs/livevoice/transcript"
)

// Flag names shared between registration and lookup.
const (
	flagConfig        = "config"
	flagModel         = "model"
	flagVoice         = "voice"
	flagAssistantName = "assistant-name"
	flagMetricsAddr   = "metrics-addr"
	flagTranscriptOut = "transcript-out"
)

const (
	exporterShutdownTimeout = 5 * time.Second

	// envPrefix namespaces environment overrides, e.g. LIVEVOICE_VOICE.
	envPrefix = "LIVEVOICE"
)

// overrideFlags can also be set through LIVEVOICE_* environment variables.
var overrideFlags = []string{flagConfig, flagModel, flagVoice, flagAssistantName, flagMetricsAddr}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a live voice session",
	Long: `Start a live voice session using the default microphone and speaker.
The session runs until interrupted with Ctrl+C or until the remote ends it.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSession(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP(flagConfig, "c", "", "Configuration file path (YAML)")
	runCmd.Flags().String(flagModel, "", "Override the live model")
	runCmd.Flags().String(flagVoice, "", "Override the prebuilt voice")
	runCmd.Flags().String(flagAssistantName, "", "Label for the assistant's transcript lines")
	runCmd.Flags().String(flagMetricsAddr, "", "Serve Prometheus metrics on this address")
	runCmd.Flags().String(flagTranscriptOut, "", "Write the final transcript to this file")
}

// newOverrides binds the override flags and their environment variables.
// A flag set on the command line wins over the environment.
func newOverrides(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, name := range overrideFlags {
		_ = v.BindPFlag(name, cmd.Flags().Lookup(name))
	}
	return v
}

// loadConfiguration reads the config file, if any, and applies overrides.
func loadConfiguration(cmd *cobra.Command) (*config.Config, error) {
	v := newOverrides(cmd)

	cfg := config.Default()
	if path := v.GetString(flagConfig); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if s := v.GetString(flagModel); s != "" {
		cfg.Live.Model = s
	}
	if s := v.GetString(flagVoice); s != "" {
		cfg.Live.Voice = s
	}
	if s := v.GetString(flagAssistantName); s != "" {
		cfg.Live.AssistantName = s
	}
	if s := v.GetString(flagMetricsAddr); s != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = s
	}
	return cfg, cfg.Validate()
}

// loadEnvFiles reads the first .env file found. Variables already set in
// the environment are kept.
func loadEnvFiles() {
	paths := []string{".env"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".livevoice.env"))
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err == nil {
			logger.Debug("loaded environment file", "path", path)
			return
		}
	}
}

func runSession(cmd *cobra.Command) error {
	loadEnvFiles()

	cfg, err := loadConfiguration(cmd)
	if err != nil {
		return err
	}
	if err := logger.Configure(cfg.LoggingSpec()); err != nil {
		return err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logger.SetVerbose(true)
	}

	apiKey, err := cfg.APIKey()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewEventBus()
	defer bus.Close()

	if cfg.Metrics.Enabled {
		bus.SubscribeAll(metrics.NewMetricsListener().Handle)
	}
	if cfg.Telemetry.Enabled {
		telemetry.SetupPropagation()
		tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName)
		if err != nil {
			return fmt.Errorf("failed to create tracer provider: %w", err)
		}
		defer shutdownTracing(bus, tp)
		bus.SubscribeAll(telemetry.NewSessionSpanListener(ctx, telemetry.Tracer(tp)).OnEvent)
	}

	out := cmd.OutOrStdout()
	printer := newTranscriptPrinter(out, transcript.DefaultUserLabel, cfg.Live.AssistantName)

	gcfg := cfg.Gemini(apiKey)
	ctrl, err := session.New(session.Options{
		Dialer:            gemini.NewDialer(*gcfg),
		Microphone:        device.Exclusive(device.NewMicrophone()),
		Speaker:           device.NewSpeaker(),
		Input:             cfg.Input(),
		Output:            cfg.Output(),
		InboundSampleRate: cfg.Audio.InboundSampleRate,
		InboundChannels:   cfg.Audio.InboundChannels,
		CloseTimeout:      cfg.Live.CloseTimeout,
		Model:             cfg.Live.Model,
		Voice:             cfg.Live.Voice,
		Bus:               bus,
		OnTranscript:      printer.Append,
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if cfg.Metrics.Enabled {
		exporter := metrics.NewExporter(cfg.Metrics.Addr)
		g.Go(func() error {
			if err := exporter.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics exporter: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), exporterShutdownTimeout)
			defer scancel()
			return exporter.Shutdown(sctx)
		})
	}

	g.Go(func() error {
		defer cancel()
		return converse(gctx, cmd, ctrl, printer, cfg.Live.CloseTimeout)
	})

	err = g.Wait()
	if path, _ := cmd.Flags().GetString(flagTranscriptOut); path != "" {
		if werr := writeTranscript(path, ctrl.Transcript(), cfg.Live.AssistantName); werr != nil {
			return errors.Join(err, werr)
		}
	}
	return err
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdownTracing drains the event bus before shutting the tracer provider
// down. The session span ends on the final IDLE transition, which may still
// be queued.
func shutdownTracing(bus *events.EventBus, tp shutdowner) {
	bus.Close()
	sctx, cancel := context.WithTimeout(context.Background(), exporterShutdownTimeout)
	defer cancel()
	if err := tp.Shutdown(sctx); err != nil {
		logger.Warn("tracer provider shutdown failed", "error", err)
	}
}

// converse starts the session and holds it until ctx ends or the remote
// closes it.
func converse(
	ctx context.Context, cmd *cobra.Command, ctrl *session.Controller, printer *transcriptPrinter,
	closeTimeout time.Duration,
) error {
	if err := ctrl.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil
		}
		fmt.Fprintln(cmd.ErrOrStderr(), session.Describe(err))
		return err
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "Connected. Start talking; press Ctrl+C to stop.")

	select {
	case <-ctx.Done():
	case <-ctrl.Done():
	}

	if closeTimeout <= 0 {
		closeTimeout = session.DefaultCloseTimeout
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	ctrl.Stop(stopCtx)
	printer.Finish()

	if err := ctrl.Err(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Session ended:", err)
		return err
	}
	return nil
}

func writeTranscript(path string, agg *transcript.Aggregator, remoteLabel string) error {
	var b strings.Builder
	for line := range agg.Lines() {
		b.WriteString(line.Format(transcript.DefaultUserLabel, remoteLabel))
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}
