package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"google.golang.org/grpc"

	"text-assistant/config"
	"text-assistant/internal/application"
	"text-assistant/internal/cli"
	"text-assistant/internal/domain"
	"text-assistant/internal/infra/audio"
	"text-assistant/internal/infra/filestore"
	"text-assistant/internal/infra/googleassistant"
	"text-assistant/internal/infra/oauth"
	"text-assistant/internal/infra/protoschema"
)

const usage = `Usage: assistant [-config path] [command]

Commands:
  (none)      run setup if needed, then read commands interactively
  status      show which setup files are present
  setup       run the setup steps that are still missing
  reset       forget the device registration and token
  ask TEXT    send one command and exit
`

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	if err := run(ctx, cfg, flag.Args(), logger); err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Error("assistant error", "error", err)
		}
		os.Exit(1)
	}
}

// app is the wired object graph shared by every subcommand.
type app struct {
	assistant  *application.Assistant
	dispatcher *application.Dispatcher
}

func newApp(cfg *config.Config, consent application.ConsentFlow, logger *slog.Logger, dialOpts ...grpc.DialOption) *app {
	artifacts := cfg.Files.Artifacts()
	store := filestore.New(artifacts)

	creds := oauth.NewManager(store, consent, cfg.OAuth.Scopes, logger)
	registry := application.NewDeviceRegistry(store, logger)

	setup := application.NewSetup(artifacts, createGenerator(cfg.Schema, artifacts, logger), registry, creds, logger)
	assistant := application.NewAssistant(setup, store, sessionFactory(cfg, store, creds, logger, dialOpts...), logger)

	return &app{
		assistant:  assistant,
		dispatcher: application.NewDispatcher(assistant, logger),
	}
}

func (a *app) Close() {
	a.dispatcher.Close()
	_ = a.assistant.Close()
}

func run(ctx context.Context, cfg *config.Config, args []string, logger *slog.Logger) error {
	consent := oauth.NewLoopbackConsent(cfg.OAuth.RedirectHost, cfg.OAuth.RedirectPort, cfg.OAuth.ConsentWait(), logger)
	a := newApp(cfg, consent, logger)
	defer a.Close()
	assistant, dispatcher := a.assistant, a.dispatcher

	command := ""
	if len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "status":
		fmt.Print(cli.RenderReadiness(assistant.CheckReadiness()))
		return nil
	case "setup":
		return runSetup(ctx, dispatcher)
	case "reset":
		if err := assistant.ResetRegistration(); err != nil {
			return err
		}
		fmt.Println("Device registration and token removed. Run setup to register again.")
		return nil
	case "ask":
		text := strings.TrimSpace(strings.Join(args[1:], " "))
		if text == "" {
			return errors.New("ask: missing command text")
		}
		if err := ensureReady(ctx, assistant, dispatcher); err != nil {
			return err
		}
		return cli.Ask(ctx, dispatcher, os.Stdout, text)
	case "":
		if err := ensureReady(ctx, assistant, dispatcher); err != nil {
			return err
		}
		logger.Info("starting text assistant",
			"endpoint", cfg.Assistant.Endpoint,
			"audio_sink", cfg.Audio.Sink,
		)
		return cli.NewREPL(os.Stdin, os.Stdout, dispatcher, logger).Run(ctx)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func ensureReady(ctx context.Context, assistant *application.Assistant, dispatcher *application.Dispatcher) error {
	status := assistant.CheckReadiness()
	if status.Ready() {
		return nil
	}
	fmt.Print(cli.RenderReadiness(status))
	return runSetup(ctx, dispatcher)
}

func runSetup(ctx context.Context, dispatcher *application.Dispatcher) error {
	outcome, err := cli.RunSetup(ctx, dispatcher, os.Stdout)
	if err != nil {
		return err
	}
	if outcome.Err != nil {
		return outcome.Err
	}
	if !outcome.Complete() {
		return domain.NewError(domain.KindNotReady, fmt.Sprintf("setup stopped at %s", outcome.Phase), nil)
	}
	return nil
}

func createGenerator(cfg config.SchemaConfig, artifacts domain.Artifacts, logger *slog.Logger) application.SchemaGenerator {
	switch cfg.Generator {
	case "protoc":
		return protoschema.NewProtocGenerator(artifacts, cfg.ProtocPath, logger)
	default:
		return protoschema.NewBuiltinGenerator(artifacts, logger)
	}
}

func createSink(cfg config.AudioConfig, logger *slog.Logger) application.AudioSink {
	switch cfg.Sink {
	case "wav":
		return audio.NewWAVSink(cfg.WAVDir, cfg.SampleRate, logger)
	case "discard":
		return application.DiscardSink{}
	default:
		return audio.NewSpeakerSink(cfg.SampleRate, logger)
	}
}

// sessionFactory reads the generated schema and the device identity from disk,
// so a session always reflects the artifacts setup left behind.
func sessionFactory(cfg *config.Config, store *filestore.Store, creds application.CredentialProvider, logger *slog.Logger, dialOpts ...grpc.DialOption) application.SessionFactory {
	return func(_ context.Context) (application.Commander, io.Closer, error) {
		schema, err := protoschema.Load(cfg.Files.Artifacts().SchemaDescriptor)
		if err != nil {
			return nil, nil, err
		}

		device, err := store.LoadDevice()
		if err != nil {
			return nil, nil, err
		}

		clientCfg := googleassistant.DefaultConfig()
		clientCfg.Endpoint = cfg.Assistant.Endpoint
		clientCfg.Insecure = cfg.Assistant.Insecure
		clientCfg.Timeout = cfg.Assistant.RequestTimeout()

		client, err := googleassistant.NewClient(clientCfg, schema, logger, dialOpts...)
		if err != nil {
			return nil, nil, err
		}

		sessionCfg := application.SessionConfig{
			LanguageCode: cfg.Assistant.LanguageCode,
			AudioOut: domain.AudioOutConfig{
				Encoding:         domain.EncodingLinear16,
				SampleRateHertz:  int32(cfg.Audio.SampleRate),
				VolumePercentage: int32(cfg.Audio.Volume),
			},
		}

		sink := createSink(cfg.Audio, logger)
		logger.Debug("session opened", "device_id", device.DeviceID, "sink", sink.Name())

		return application.NewSession(creds, client, sink, device, sessionCfg, logger), client, nil
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	// stdout belongs to the prompt and the assistant's answers.
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
