package main

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/Veraticus/matflow/internal/api"
	"github.com/Veraticus/matflow/internal/classifier"
	"github.com/Veraticus/matflow/internal/cli"
	"github.com/Veraticus/matflow/internal/config"
	"github.com/Veraticus/matflow/internal/metrics"
	"github.com/Veraticus/matflow/internal/reconcile"
	"github.com/Veraticus/matflow/internal/resilience"
	"github.com/spf13/cobra"
)

// newClassifier wires the classifier to the backend through the shared
// rate limit and circuit breaker.
func newClassifier(cfg *config.Config, client *api.Client, m *metrics.PipelineMetrics) *classifier.Classifier {
	res := resilience.DefaultConfig()
	res.RequestsPerMinute = cfg.RequestsPerMinute

	return classifier.New(client,
		classifier.WithMaxBytes(cfg.MaxAnalyzeBytes),
		classifier.WithTimeout(cfg.ClassifyTimeout),
		classifier.WithExecutor(resilience.NewExecutor(res)),
		classifier.WithObserver(m),
	)
}

func writeMetrics(cfg *config.Config, m *metrics.PipelineMetrics) {
	if cfg.MetricsTextfile == "" {
		return
	}
	if err := m.WriteTextfile(cfg.MetricsTextfile); err != nil {
		slog.Warn("Failed to write metrics", "path", cfg.MetricsTextfile, "error", err)
	}
}

func analyzeCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "analyze <file|dir>...",
		Short: "Classify files without uploading them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, release := withInterrupts(cmd.Context(), "")
			defer release()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			files, err := collectFiles(args)
			if err != nil {
				return err
			}

			store, err := initStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					slog.Warn("Failed to close database", "error", err)
				}
			}()

			client, err := newClient(ctx, cfg, store)
			if err != nil {
				return err
			}

			m := metrics.NewPipelineMetrics()
			defer writeMetrics(cfg, m)

			suggestions, err := newClassifier(cfg, client, m).Classify(ctx, files, cli.ClassifyProgress(os.Stderr))
			if err != nil {
				return err
			}

			hierarchy := reconcile.NewHierarchy(client)
			hierarchy.Warm(ctx, suggestions)
			for i := range suggestions {
				hierarchy.FillNames(&suggestions[i])
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(suggestions)
			}
			return cli.WriteSuggestions(cmd.OutOrStdout(), suggestions, cfg.Threshold)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print suggestions as JSON")
	return cmd
}
