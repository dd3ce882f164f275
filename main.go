package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smazurov/kvsnode/cmd"
	"github.com/smazurov/kvsnode/internal/api"
	"github.com/smazurov/kvsnode/internal/config"
	"github.com/smazurov/kvsnode/internal/credentials"
	"github.com/smazurov/kvsnode/internal/events"
	"github.com/smazurov/kvsnode/internal/invoke"
	"github.com/smazurov/kvsnode/internal/logging"
	"github.com/smazurov/kvsnode/internal/metrics"
	"github.com/smazurov/kvsnode/internal/nats"
	"github.com/smazurov/kvsnode/internal/pipeline"
	"github.com/smazurov/kvsnode/internal/streams"
	"github.com/smazurov/kvsnode/internal/systemd"
	"github.com/smazurov/kvsnode/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"kvsnode.toml"`

	// Server settings
	Port        string `help:"HTTP API listen address" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	CORSOrigins string `name:"cors-origins" help:"Comma-separated origins allowed to call the API, * for any" default:"*" toml:"server.cors_origins" env:"CORS_ORIGINS"`

	// NATS settings
	NatsURL        string `name:"nats-url" help:"NATS server URL" default:"nats://127.0.0.1:4222" toml:"nats.url" env:"NATS_URL"`
	NatsEmbedded   bool   `name:"nats-embedded" help:"Run an embedded NATS server" default:"false" toml:"nats.embedded" env:"NATS_EMBEDDED"`
	NatsPort       int    `name:"nats-port" help:"Embedded NATS server port" default:"4222" toml:"nats.port" env:"NATS_PORT"`
	CommandSubject string `help:"Subject the command server listens on" default:"kvsnode.commands" toml:"nats.command_subject" env:"COMMAND_SUBJECT"`
	OutputTopic    string `help:"Output topic, overridden by OUTPUT_TOPIC" default:"" toml:"nats.output_topic" env:"OUTPUT_TOPIC"`

	// Pipeline settings
	Engine         string        `help:"Pipeline engine (launch, native)" default:"launch" toml:"pipeline.engine" env:"PIPELINE_ENGINE"`
	StopTimeout    time.Duration `help:"How long a stopping pipeline may take" default:"10s" toml:"pipeline.stop_timeout" env:"STOP_TIMEOUT"`
	RestartBackoff time.Duration `help:"Delay before an automatic restart" default:"0s" toml:"pipeline.restart_backoff" env:"RESTART_BACKOFF"`
	MaxRestarts    int           `help:"Consecutive automatic restarts before giving up, 0 for unlimited" default:"0" toml:"pipeline.max_restarts" env:"MAX_RESTARTS"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel  string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		loggingConfig := config.LoadLoggingConfig(opts.Config)
		loggingConfig.Level = opts.LoggingLevel
		loggingConfig.Format = opts.LoggingFormat
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main")
		notifier := systemd.NewNotifier()

		var (
			embedded   *nats.Server
			client     *nats.Client
			cmdServer  *nats.CommandServer
			bridge     *nats.Bridge
			controller *streams.Controller
			server     *api.Server
			watcher    *config.Watcher[logging.Config]
			unsubStats func()
			cancel     context.CancelFunc = func() {}
		)

		fail := func(msg string, err error) {
			logger.Error(msg, "error", err)
			os.Exit(1)
		}

		hooks.OnStart(func() {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			logger.Info("Starting kvsnode", "version", version.String())

			env, err := config.LoadRuntimeEnv()
			if err != nil {
				fail("Invalid runtime environment", err)
			}
			topic := opts.OutputTopic
			if env.OutputTopic != "" {
				topic = env.OutputTopic
			}

			watcher = config.NewConfigWatcher(opts.Config, func(path string) (logging.Config, error) {
				return config.LoadLoggingConfig(path), nil
			}, logging.GetLogger("config"))
			watcher.OnReload(func(c logging.Config) {
				logging.ApplyLevels(c.Level, c.Modules)
				logger.Info("Log levels reloaded", "level", c.Level)
			})
			if startErr := watcher.Start(ctx); startErr != nil {
				logger.Warn("Failed to start config watcher, live log levels disabled", "error", startErr)
			}

			engine, err := pipeline.NewEngine(opts.Engine, env.GstLaunchPath, env.PipelineEnv(), opts.StopTimeout/2)
			if err != nil {
				fail("Failed to create pipeline engine", err)
			}
			recordEngineVersion(ctx, engine, opts.Engine, logger)

			bus := events.New()
			unsubStats = metrics.Subscribe(bus)

			natsURL := opts.NatsURL
			if opts.NatsEmbedded {
				embedded = nats.NewServer(nats.ServerOptions{Port: opts.NatsPort, Logger: logging.GetLogger("nats")})
				if startErr := embedded.Start(); startErr != nil {
					fail("Failed to start embedded NATS server", startErr)
				}
				natsURL = embedded.ClientURL()
			}

			client = nats.NewClient(natsURL, "kvsnode", logging.GetLogger("nats"))
			if connErr := client.Connect(); connErr != nil {
				fail("Failed to connect to NATS", connErr)
			}

			var publisher streams.Publisher
			if topic == "" {
				logger.Warn("No output topic configured, invocations will be rejected")
				publisher = streams.PublisherFunc(func(context.Context, streams.Response) error {
					return invoke.ErrTopicNotConfigured
				})
			} else {
				p, pubErr := nats.NewPublisher(client, topic, bus, logging.GetLogger("nats"))
				if pubErr != nil {
					fail("Invalid output topic", pubErr)
				}
				publisher = p
			}

			controller, err = streams.NewController(streams.Config{
				Engine:      engine,
				Credentials: credentials.FromEnvironment(env),
				Publisher:   publisher,
				Bus:         bus,
				Session: pipeline.Options{
					StopTimeout:    opts.StopTimeout,
					CredentialsDir: env.CredentialsDir,
				},
				Restart: streams.RestartPolicy{
					MaxAttempts: opts.MaxRestarts,
					Backoff:     opts.RestartBackoff,
				},
			})
			if err != nil {
				fail("Failed to create controller", err)
			}

			adapter := &invoke.Adapter{Topic: topic, Controller: controller, Publisher: publisher}

			cmdServer = nats.NewCommandServer(client, opts.CommandSubject, adapter, logging.GetLogger("nats"))
			if startErr := cmdServer.Start(); startErr != nil {
				fail("Failed to start command server", startErr)
			}
			bridge = nats.NewBridge(client, bus, logging.GetLogger("nats"))
			bridge.Start()

			server = api.NewServer(&api.Options{
				AuthUsername:      opts.AuthUsername,
				AuthPassword:      opts.AuthPassword,
				CORSOrigins:       splitList(opts.CORSOrigins),
				Invoker:           adapter,
				PrometheusHandler: promhttp.Handler(),
			})

			go notifier.RunWatchdog(ctx)
			notifier.Ready()
			notifier.Status("Waiting for commands on " + opts.CommandSubject)

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil {
				fail("Failed to start HTTP server", startErr)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			notifier.Stopping()

			if server != nil {
				stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
				if stopErr := server.Stop(stopCtx); stopErr != nil {
					logger.Error("Error stopping HTTP server", "error", stopErr)
				}
				stopCancel()
			}
			if cmdServer != nil {
				cmdServer.Stop()
			}

			// Stop the pipeline after inbound commands are cut off.
			if controller != nil {
				_ = controller.Close()
			}
			if bridge != nil {
				bridge.Stop()
			}
			if client != nil {
				client.Close()
			}
			if embedded != nil {
				embedded.Stop()
			}
			if unsubStats != nil {
				unsubStats()
			}
			if watcher != nil {
				_ = watcher.Stop()
			}
			cancel()
		})
	})

	cli.Root().Use = "kvsnode"
	cli.Root().Version = version.String()
	cli.Root().AddCommand(cmd.CreateStreamCmd())
	cli.Root().AddCommand(cmd.CreateDescribeCmd())

	cli.Run()
}

// recordEngineVersion stores the engine kind and GStreamer version shown by
// the health endpoint.
func recordEngineVersion(ctx context.Context, engine pipeline.Engine, kind string, logger *slog.Logger) {
	if kind == "" {
		kind = pipeline.EngineLaunch
	}
	var gstVersion string
	if launch, ok := engine.(*pipeline.LaunchEngine); ok {
		v, err := launch.GStreamerVersion(ctx)
		if err != nil {
			logger.Warn("Failed to read GStreamer version", "error", err)
		}
		gstVersion = v
	}
	version.SetEngine(kind, gstVersion)
	logger.Info("Pipeline engine ready", "engine", kind, "gstreamer", gstVersion)
}

// splitList splits a comma-separated option, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
