package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/smazurov/kvsnode/internal/config"
	"github.com/smazurov/kvsnode/internal/credentials"
	"github.com/smazurov/kvsnode/internal/events"
	"github.com/smazurov/kvsnode/internal/logging"
	"github.com/smazurov/kvsnode/internal/pipeline"
	"github.com/spf13/cobra"
)

// Exit codes of the stream command.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// CreateStreamCmd creates the standalone stream command.
func CreateStreamCmd() *cobra.Command {
	var flags streamFlags
	var engineKind string
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Stream one camera without the controller",
		Long: `Builds a single pipeline from the flags and runs it until SIGINT/SIGTERM ` +
			`or until the pipeline ends or fails. Nothing is restarted and no commands are accepted.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			params, err := flags.params()
			if errors.Is(err, ErrStreamNameRequired) {
				fmt.Fprintln(os.Stderr, "Error:", err)
				fmt.Fprint(os.Stderr, cmd.UsageString())
				os.Exit(exitUsage)
			}

			loggingConfig := logging.Config{Level: "info", Format: "text"}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("stream").With("stream", flags.stream)

			if err != nil {
				logger.Error("Invalid stream parameters", "error", err)
				os.Exit(exitError)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			env, err := config.LoadRuntimeEnv()
			if err != nil {
				logger.Error("Invalid runtime environment", "error", err)
				os.Exit(exitError)
			}

			creds, err := credentials.FromEnvironment(env).Resolve(ctx)
			if err != nil {
				logger.Error("Failed to resolve credentials", "error", err)
				os.Exit(exitError)
			}

			engine, err := pipeline.NewEngine(engineKind, env.GstLaunchPath, env.PipelineEnv(), pipeline.DefaultStopTimeout/2)
			if err != nil {
				logger.Error("Failed to create pipeline engine", "error", err)
				os.Exit(exitError)
			}

			bus := events.New()
			pipelineEvents := make(chan events.PipelineEvent, 64)
			unsub := events.SubscribeToChannel[events.PipelineEvent](bus, pipelineEvents)
			defer unsub()

			session, err := pipeline.NewSession(engine, params.ToGstParams(), creds, pipeline.Options{
				Bus:            bus,
				CredentialsDir: env.CredentialsDir,
			})
			if err != nil {
				logger.Error("Failed to build pipeline", "error", err)
				os.Exit(exitError)
			}

			logger.Info("Starting stream",
				"device", params.VideoDevice,
				"region", params.AWSRegion,
				"access_key", creds.AccessKey())
			logger.Debug("Pipeline description", "session_id", session.ID(), "description", session.Description())
			session.Start()

			exitCode := waitForSession(ctx, pipelineEvents, logger)
			if stopErr := session.Stop(); stopErr != nil {
				logger.Warn("Pipeline did not stop cleanly", "error", stopErr)
			}

			logger.Info("Stream command exiting", "exit_code", exitCode)
			os.Exit(exitCode)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&engineKind, "engine", pipeline.EngineLaunch, "Pipeline engine (launch, native)")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")

	return cmd
}

// waitForSession blocks until ctx is done or a terminal pipeline event
// arrives and returns the process exit code.
func waitForSession(ctx context.Context, pipelineEvents <-chan events.PipelineEvent, logger logging.Logger) int {
	for {
		select {
		case <-ctx.Done():
			logger.Info("Signal received, stopping stream")
			return exitOK
		case ev := <-pipelineEvents:
			switch ev.Kind {
			case events.PipelineEnd:
				logger.Info("End of stream", "source", ev.Source)
				return exitOK
			case events.PipelineError:
				logger.Error("Pipeline error", "source", ev.Source, "code", ev.Code, "message", ev.Message)
				return exitError
			case events.PipelineWarning:
				logger.Warn("Pipeline warning", "source", ev.Source, "message", ev.Message)
			case events.PipelineCredentialsExpiring:
				// The stream keeps running until the upload itself fails.
				logger.Warn("Session credentials about to expire")
			}
		}
	}
}
