package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/autoscript/runtime/internal/autoscript/cronjobs"
	"github.com/autoscript/runtime/internal/autoscript/demoexec"
	"github.com/autoscript/runtime/internal/autoscript/executor"
	"github.com/autoscript/runtime/internal/autoscript/impact"
	"github.com/autoscript/runtime/internal/autoscript/runner"
	"github.com/autoscript/runtime/internal/autoscript/scheduler"
	"github.com/autoscript/runtime/internal/autoscript/validate"
	"github.com/autoscript/runtime/internal/autoscript/watcher"
	"github.com/autoscript/runtime/internal/autoscript/watcher/htmlwatcher"
	"github.com/autoscript/runtime/internal/autoscript/watcher/wswatcher"
	"github.com/autoscript/runtime/internal/platform/config"
	"github.com/autoscript/runtime/internal/platform/logging"
	"github.com/autoscript/runtime/internal/platform/telemetry"
)

func newRunCommand(root *cobra.Command) *cobra.Command {
	var profileID string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a script and drive it until it completes or is stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.PersistentFlags())
			if err != nil {
				return err
			}

			logger := logging.New(logging.Config{Level: cfg.LogLevel})

			script, err := loadScript(cfg.ScriptPath)
			if err != nil {
				return err
			}
			if result := validate.Validate(script); !result.OK {
				for _, e := range result.Errors {
					logger.Error("validation: %s", e)
				}
				return fmt.Errorf("run: script %s failed validation (%d errors)", cfg.ScriptPath, len(result.Errors))
			}

			if profileID == "" {
				profileID = script.ProfileID
			}

			w, mockFeed, err := buildWatcher(cfg, logger)
			if err != nil {
				return err
			}

			eng := impact.New()
			wrapper := executor.NewWrapper(demoexec.Primitives(logger), eng, logger)
			sched := scheduler.New(logger)

			var metrics *telemetry.Metrics
			observers := []runner.Observer{runner.NewLoggingObserver(logger)}
			if cfg.MetricsEnabled {
				metrics = telemetry.NewMetrics()
				observers = append(observers, telemetry.NewMetricsObserver(metrics))
			}

			// TracingOTLPURL is accepted in config for a future exporter
			// but wired to nothing yet: NewTracerProvider attaches no
			// exporter, so spans are created and discarded. Installing
			// one requires an otlptrace exporter dependency this module
			// does not currently carry.
			var tr runner.Tracer
			if cfg.TracingEnabled {
				otel.SetTracerProvider(telemetry.NewTracerProvider())
				tracer := telemetry.NewTracer()
				tr = tracer
				wrapper.RecoveryTracer = tracer
			}

			r := runner.New(runner.Deps{
				Script:                      script,
				Wrapper:                     wrapper,
				Impact:                      eng,
				Scheduler:                   sched,
				Watcher:                     w,
				MockFeed:                    mockFeed,
				StopWhenMockEventsExhausted: false,
				Observer:                    runner.NewCompositeObserver(observers...),
				Tracer:                      tr,
				Logger:                      logger,
			})

			cronReg := cronjobs.New(logger)
			if err := cronReg.RegisterAll(script, r.HandleCronFire); err != nil {
				return fmt.Errorf("run: register cron triggers: %w", err)
			}

			var metricsSrv *http.Server
			if metrics != nil {
				metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
				go func() {
					if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logger.Error("metrics server: %v", err)
					}
				}()
				logger.Info("serving metrics on %s", cfg.MetricsAddr)
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sig
				logger.Info("received interrupt, stopping runner")
				r.Stop("signal")
			}()

			if err := r.Start(profileID); err != nil {
				return fmt.Errorf("run: start: %w", err)
			}
			cronReg.Start()
			defer cronReg.Stop()

			result := <-r.Done()
			logger.Info("run %s stopped: %s", result.RunID, result.Reason)

			if metricsSrv != nil {
				_ = metricsSrv.Close()
			}

			store, err := runner.NewSnapshotStore(cfg.JobStoreDir)
			if err != nil {
				return fmt.Errorf("run: open job store: %w", err)
			}
			if err := store.Save(r.Snapshot(result.Reason)); err != nil {
				return fmt.Errorf("run: persist snapshot: %w", err)
			}
			logger.Info("persisted snapshot for run %s to %s", result.RunID, cfg.JobStoreDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&profileID, "profile-id", "", "profile id to run against (defaults to the script's profileId)")
	return cmd
}

// buildWatcher constructs the watcher implementation cfg.Watcher selects.
// The "mock" kind carries no scripted events for a live `run` invocation —
// it only keeps the runner alive for startup/manual/cron triggers, since a
// real event stream requires html or ws.
func buildWatcher(cfg config.RuntimeConfig, logger logging.Logger) (watcher.Watcher, *watcher.MockFeed, error) {
	switch cfg.Watcher {
	case config.WatcherHTML:
		src := htmlwatcher.NewHTTPSource(cfg.WatcherURL, nil)
		pollInterval := time.Duration(cfg.WatcherPollMs) * time.Millisecond
		w, err := htmlwatcher.New(src, pollInterval, cfg.WatcherCacheSize, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("run: build html watcher: %w", err)
		}
		return w, nil, nil

	case config.WatcherWS:
		return wswatcher.New(cfg.WatcherURL, nil, logger), nil, nil

	case config.WatcherMock, "":
		return nil, watcher.NewMockFeed(nil, 0), nil

	default:
		return nil, nil, fmt.Errorf("run: unknown watcher kind %q", cfg.Watcher)
	}
}
