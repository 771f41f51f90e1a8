package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rojolang/vocals-stream-go/pkg/vocals"
)

var (
	verbose  bool
	endpoint string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vocals",
		Short: "Vocals stream CLI",
		Long:  "Capture microphone audio and stream it as sequence-numbered PCM frames over WebSocket",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
			if verbose {
				cfg := vocals.DefaultLogConfig()
				cfg.Level = vocals.DebugLevel
				vocals.SetGlobalLogger(vocals.NewVocalsLogger(cfg))
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "WebSocket endpoint URL (default $VOCALS_WS_ENDPOINT)")

	rootCmd.AddCommand(streamCmd())
	rootCmd.AddCommand(listenCmd())
	rootCmd.AddCommand(devicesCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		vocals.GetGlobalLogger().WithError(err).Fatal("CLI execution failed")
	}
}

func streamCmd() *cobra.Command {
	var (
		channels    int
		sampleRate  int
		frameSize   int
		deviceID    int
		duration    time.Duration
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Stream microphone audio to an endpoint",
		Long:  "Open the input device and stream framed PCM until interrupted or --duration elapses",
		RunE: func(cmd *cobra.Command, args []string) error {
			audioConfig := vocals.AudioConfigFromEnv()
			if endpoint != "" {
				audioConfig.Endpoint = endpoint
			}
			if cmd.Flags().Changed("channels") {
				audioConfig.Channels = channels
			}
			if cmd.Flags().Changed("sample-rate") {
				audioConfig.SampleRate = sampleRate
			}
			if cmd.Flags().Changed("frame-size") {
				audioConfig.FrameSize = frameSize
			}

			engine := vocals.NewEngineConfig()
			if cmd.Flags().Changed("device") {
				engine.AudioDeviceID = &deviceID
			}
			if verbose {
				engine.DebugLevel = "DEBUG"
			}

			if metricsAddr != "" {
				handler, shutdown, err := vocals.InitPrometheus()
				if err != nil {
					return fmt.Errorf("init prometheus: %w", err)
				}
				defer shutdown(context.Background())
				go serveMetrics(metricsAddr, handler)
			}

			logConfig := vocals.DefaultLogConfig()
			logConfig.Level = vocals.ParseLogLevel(engine.DebugLevel)
			logger := vocals.NewVocalsLogger(logConfig)
			client, err := vocals.NewClient(
				vocals.WithEngineConfig(engine),
				vocals.WithLogger(logger),
				vocals.WithConnectionHandler(vocals.CreateConnectionStatusHandler(logger, func(state vocals.ConnectionState) {
					if state == vocals.Reconnecting {
						fmt.Println("Connection lost, reconnecting...")
					}
				})),
			)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			session, err := client.Start(ctx, audioConfig)
			if err != nil {
				return err
			}
			failed := make(chan struct{}, 1)
			signalFailed := func(error) {
				select {
				case failed <- struct{}{}:
				default:
				}
			}
			session.OnStateChange(vocals.ChainStateHandlers(
				vocals.CreateStateLoggingHandler(logger),
				vocals.CreateFailureHandler(signalFailed),
			))
			if session.State() == vocals.StateFailed {
				signalFailed(nil)
			}

			fmt.Printf("Streaming %d ch @ %d Hz (%s frames) to %s\n",
				audioConfig.Channels, audioConfig.SampleRate, audioConfig.FrameDuration(), audioConfig.Endpoint)
			fmt.Println("Press Ctrl+C to stop")

			ticker := time.NewTicker(5 * time.Second)
			defer ticker.Stop()
		wait:
			for {
				select {
				case <-ctx.Done():
					break wait
				case <-failed:
					break wait
				case <-ticker.C:
					logger.LogStats(session.Stats())
				}
			}

			failure := session.Err()
			client.Stop(session)
			printStats(session.Stats())
			if failure != nil {
				vocals.CreateErrorLoggingHandler(logger)(vocals.WrapError(failure, vocals.ErrCodeSessionFailed))
				return failure
			}
			return nil
		},
	}

	defaults := vocals.DefaultAudioConfig()
	cmd.Flags().IntVar(&channels, "channels", defaults.Channels, "Number of input channels")
	cmd.Flags().IntVar(&sampleRate, "sample-rate", defaults.SampleRate, "Sample rate in Hz")
	cmd.Flags().IntVar(&frameSize, "frame-size", defaults.FrameSize, "Samples per channel in each frame")
	cmd.Flags().IntVar(&deviceID, "device", 0, "Input device ID (default system input)")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop after this long (0 streams until interrupted)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9464")

	return cmd
}

func serveMetrics(addr string, handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		vocals.GetGlobalLogger().WithError(err).Error("Metrics server stopped")
	}
}

func printStats(stats vocals.Stats) {
	fmt.Println("\nSession Statistics:")
	fmt.Printf("  Frames Encoded: %d\n", stats.FramesEncoded)
	fmt.Printf("  Frames Sent: %d\n", stats.FramesSent)
	fmt.Printf("  Frames Lost: %d\n", stats.FramesLost)
	fmt.Printf("  Samples Dropped: %d\n", stats.SamplesDropped)
	fmt.Printf("  Reconnects: %d\n", stats.Reconnects)
}

func listenCmd() *cobra.Command {
	var (
		addr       string
		channels   int
		sampleRate int
		frameSize  int
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Run a local frame receiver",
		Long:  "Accept framed PCM streams and report levels and sequence gaps",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := vocals.GetGlobalLogger().WithComponent("listener")
			audioConfig := vocals.NewAudioConfig("ws://"+addr, channels, sampleRate, frameSize)
			engine := vocals.NewEngineConfig()

			receiver := vocals.NewReceiver(audioConfig, engine.Subprotocol, logger)
			receiver.OnFrame(vocals.CreateGapDetector(func(last, next, missing uint32) {
				logger.Warnf("Gap after frame %d: next %d, %d missing", last, next, missing)
			}))
			var frames atomic.Uint64
			level := vocals.CreateLevelMonitor(func(rms, peak float64) {
				if frames.Add(1)%50 == 0 {
					logger.Debugf("Level rms=%.3f peak=%.3f", rms, peak)
				}
			})
			receiver.OnFrame(level)

			mux := http.NewServeMux()
			mux.Handle("/", receiver)
			srv := &http.Server{Addr: addr, Handler: mux}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			fmt.Printf("Listening on ws://%s\n", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			stats := receiver.Stats()
			fmt.Println("\nReceiver Statistics:")
			fmt.Printf("  Connections: %d\n", stats.Connections)
			fmt.Printf("  Frames: %d\n", stats.Frames)
			fmt.Printf("  Missing: %d\n", stats.Missing)
			fmt.Printf("  Out of Order: %d\n", stats.OutOfOrder)
			fmt.Printf("  Malformed: %d\n", stats.Malformed)
			return nil
		},
	}

	defaults := vocals.DefaultAudioConfig()
	cmd.Flags().StringVar(&addr, "addr", "localhost:14520", "Address to listen on")
	cmd.Flags().IntVar(&channels, "channels", defaults.Channels, "Expected channels per frame")
	cmd.Flags().IntVar(&sampleRate, "sample-rate", defaults.SampleRate, "Expected sample rate in Hz")
	cmd.Flags().IntVar(&frameSize, "frame-size", defaults.FrameSize, "Expected samples per channel in each frame")

	return cmd
}

func devicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Audio device management",
		Long:  "Commands for listing and checking audio input devices",
	}

	cmd.AddCommand(devicesListCmd())
	cmd.AddCommand(devicesCheckCmd())

	return cmd
}

func devicesListCmd() *cobra.Command {
	var inputOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			dm := vocals.NewAudioDeviceManager(nil)
			if err := dm.RefreshDevices(); err != nil {
				return err
			}

			devices := dm.GetDevices()
			if inputOnly {
				devices = dm.GetInputDevices()
			}
			if len(devices) == 0 {
				fmt.Println("No audio devices found")
				return nil
			}

			fmt.Println("Available Audio Devices:")
			for _, device := range devices {
				fmt.Println(vocals.FormatDevice(device))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&inputOnly, "input", false, "Only show input devices")

	return cmd
}

func devicesCheckCmd() *cobra.Command {
	var (
		channels   int
		sampleRate int
	)

	cmd := &cobra.Command{
		Use:   "check <device-id>",
		Short: "Check that a device can capture the given format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var deviceID int
			if _, err := fmt.Sscanf(args[0], "%d", &deviceID); err != nil {
				return fmt.Errorf("invalid device id %q", args[0])
			}

			dm := vocals.NewAudioDeviceManager(nil)
			if err := dm.RefreshDevices(); err != nil {
				return err
			}
			if err := dm.ValidateDevice(deviceID, channels, float64(sampleRate)); err != nil {
				return err
			}
			device, _ := dm.GetDeviceByID(deviceID)
			fmt.Println(vocals.FormatDevice(*device))
			fmt.Printf("✓ Device supports %d ch @ %d Hz\n", channels, sampleRate)
			return nil
		},
	}

	defaults := vocals.DefaultAudioConfig()
	cmd.Flags().IntVar(&channels, "channels", defaults.Channels, "Number of input channels")
	cmd.Flags().IntVar(&sampleRate, "sample-rate", defaults.SampleRate, "Sample rate in Hz")

	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(configShowCmd())

	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display engine and audio settings after applying .env and VOCALS_* variables",
		Run: func(cmd *cobra.Command, args []string) {
			engine := vocals.NewEngineConfig()
			engine.PrintConfig()

			audioConfig := vocals.AudioConfigFromEnv()
			if endpoint != "" {
				audioConfig.Endpoint = endpoint
			}
			fmt.Println("\nAudio:")
			fmt.Printf("  Endpoint: %s\n", audioConfig.Endpoint)
			fmt.Printf("  Channels: %d\n", audioConfig.Channels)
			fmt.Printf("  Sample Rate: %d Hz\n", audioConfig.SampleRate)
			fmt.Printf("  Frame Size: %d samples (%s)\n", audioConfig.FrameSize, audioConfig.FrameDuration())
			fmt.Printf("  API Key: %s\n", maskString(os.Getenv("VOCALS_DEV_API_KEY")))

			issues := engine.Validate()
			if err := audioConfig.Validate(); err != nil {
				issues = append(issues, err.Error())
			}
			if len(issues) == 0 {
				fmt.Println("\n✓ Configuration is valid")
				return
			}
			fmt.Println("\nConfiguration issues:")
			for _, issue := range issues {
				fmt.Printf("  - %s\n", issue)
			}
		},
	}

	return cmd
}

// maskString hides all but the edges of a secret.
func maskString(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
