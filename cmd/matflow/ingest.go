package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Veraticus/matflow/internal/classifier"
	"github.com/Veraticus/matflow/internal/cli"
	"github.com/Veraticus/matflow/internal/common"
	"github.com/Veraticus/matflow/internal/config"
	"github.com/Veraticus/matflow/internal/duplicate"
	"github.com/Veraticus/matflow/internal/engine"
	"github.com/Veraticus/matflow/internal/manifest"
	"github.com/Veraticus/matflow/internal/metrics"
	"github.com/Veraticus/matflow/internal/model"
	"github.com/Veraticus/matflow/internal/reconcile"
	"github.com/Veraticus/matflow/internal/report"
	"github.com/Veraticus/matflow/internal/storage"
	"github.com/Veraticus/matflow/internal/tui"
	"github.com/Veraticus/matflow/internal/upload"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type ingestOptions struct {
	manifestPath string
	reportPath   string
	skipAI       bool
	review       bool
	dashboard    bool
	dryRun       bool
}

func ingestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <file|dir>...",
		Short: "Classify, review and upload a batch of files",
		Long: `Classify, review and upload a batch of files.

Each file is classified by the backend unless --skip-ai or --manifest is
given. Suggestions below the threshold, and rows missing a universe,
category, product, type or audience, are not uploaded; use --review to fix
them first. Files that already exist are handled by --on-conflict:
skip keeps the existing material, replace overwrites it, ask prompts.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.skipAI, "skip-ai", false, "skip classification and fill rows with the configured defaults")
	cmd.Flags().StringVar(&opts.manifestPath, "manifest", "", "YAML manifest with per-file metadata (implies --skip-ai)")
	cmd.Flags().BoolVar(&opts.review, "review", false, "review and edit suggestions before uploading")
	cmd.Flags().BoolVar(&opts.dashboard, "tui", false, "show a live dashboard while uploading")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "stop after showing the suggestions")
	cmd.Flags().StringVar(&opts.reportPath, "report", "", "write a report of the run (.xlsx or .json)")
	cmd.Flags().Float64("threshold", 0.8, "minimum confidence for classifier suggestions")
	cmd.Flags().String("on-conflict", "skip", "what to do with files that already exist (skip, replace, ask)")
	cmd.Flags().String("metrics-textfile", "", "write Prometheus metrics to this file")

	_ = viper.BindPFlag("upload.threshold", cmd.Flags().Lookup("threshold"))
	_ = viper.BindPFlag("upload.on_conflict", cmd.Flags().Lookup("on-conflict"))
	_ = viper.BindPFlag("metrics.textfile", cmd.Flags().Lookup("metrics-textfile"))

	return cmd
}

func runIngest(cmd *cobra.Command, args []string, opts ingestOptions) error {
	ctx, release := withInterrupts(cmd.Context(), "")
	defer release()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.dashboard && cfg.OnConflict == config.ConflictAsk {
		return common.NewUserError("--tui cannot prompt for conflicts; use --on-conflict skip or replace", common.ErrInvalidConfig)
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

	out := cmd.OutOrStdout()
	prompter := cli.NewPrompter(os.Stdin, out)
	hierarchy := reconcile.NewHierarchy(client)
	batchID := uuid.NewString()

	runnerOpts := []upload.Option{
		upload.WithChecker(duplicate.NewResolver(client)),
		upload.WithPolicy(cfg.OnConflict),
		upload.WithJournal(store, batchID),
		upload.WithObserver(m),
		upload.WithOnReplaced(func(*model.Material) { hierarchy.Invalidate() }),
	}
	if cfg.OnConflict == config.ConflictAsk {
		runnerOpts = append(runnerOpts, upload.WithDecider(prompter))
	}
	runner := upload.NewExecutor(client, runnerOpts...)

	session := engine.NewSession(ctx, newClassifier(cfg, client, m), runner, hierarchy, engine.Config{
		ID:        batchID,
		Threshold: cfg.Threshold,
		Defaults: classifier.Defaults{
			MaterialType: cfg.DefaultMaterialType,
			Audience:     cfg.DefaultAudience,
		},
	})
	defer session.Close()

	if err := session.AddFiles(files...); err != nil {
		return err
	}
	if err := fillSuggestions(ctx, session, hierarchy, opts); err != nil {
		return err
	}

	fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("%d files", len(files))))
	if err := cli.WriteSuggestions(out, session.Store().Suggestions(), session.Threshold()); err != nil {
		return err
	}

	if opts.review {
		if err := session.Review(prompter); err != nil {
			if errors.Is(err, cli.ErrReviewAborted) {
				fmt.Fprintln(out, cli.FormatInfo("Review aborted; nothing was uploaded"))
				return nil
			}
			return err
		}
	}
	if opts.dryRun {
		fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Dry run: %d of %d files would be uploaded",
			session.Store().ReadyCount(session.Threshold()), len(files))))
		return nil
	}

	if err := store.StartBatch(ctx, batchID, len(files)); err != nil {
		slog.Warn("Failed to record batch start", "batch", batchID, "error", err)
	}

	start := time.Now()
	var result model.BatchResult
	var uploadErr error
	if opts.dashboard {
		result, uploadErr = tui.RunUploads(ctx, files, runner.Tracker(), session.UploadContext,
			tui.WithTitle(fmt.Sprintf("Uploading %d files (batch %s)", len(files), batchID[:8])))
	} else {
		stop := cli.UploadProgress(os.Stderr, runner.Tracker(), len(files))
		result, uploadErr = session.Upload()
		stop()
	}

	// The batch record and report are written even when the run was cut short.
	finishCtx := context.WithoutCancel(ctx)
	if err := store.FinishBatch(finishCtx, batchID, result); err != nil {
		slog.Warn("Failed to record batch result", "batch", batchID, "error", err)
	}

	if err := cli.WriteResult(out, result); err != nil {
		return err
	}
	slog.Debug("Ingest finished", "batch", batchID, "elapsed", cli.FormatElapsed(time.Since(start)))

	if opts.reportPath != "" {
		if err := writeReport(finishCtx, store, opts.reportPath, batchID, session.Threshold(), result); err != nil {
			return err
		}
		fmt.Fprintln(out, cli.FormatSuccess("Report written to "+opts.reportPath))
	}

	if uploadErr != nil {
		return uploadErr
	}
	if result.FailureCount > 0 {
		return common.NewUserError(fmt.Sprintf("%d of %d files were not uploaded", result.FailureCount, result.Total()), nil)
	}
	return nil
}

// fillSuggestions loads one suggestion per file from the manifest, the
// defaults, or the classifier.
func fillSuggestions(ctx context.Context, session *engine.Session, hierarchy *reconcile.Hierarchy, opts ingestOptions) error {
	switch {
	case opts.manifestPath != "":
		mf, err := manifest.Load(opts.manifestPath)
		if err != nil {
			return common.NewUserError("cannot use manifest "+opts.manifestPath, err)
		}
		suggestions, err := mf.Suggestions(ctx, session.Files(), hierarchy)
		if err != nil {
			return err
		}
		return session.Prefill(suggestions)
	case opts.skipAI:
		return session.SkipAI()
	default:
		return session.Analyze(cli.ClassifyProgress(os.Stderr))
	}
}

func writeReport(ctx context.Context, store *storage.SQLiteStorage, path, batchID string, threshold float64, result model.BatchResult) error {
	entries, err := store.ListJournal(ctx, storage.JournalFilter{BatchID: batchID})
	if err != nil {
		slog.Warn("Failed to load journal for report", "batch", batchID, "error", err)
	}
	return report.Write(path, report.Report{
		GeneratedAt: time.Now(),
		BatchID:     batchID,
		Threshold:   threshold,
		Result:      result,
		Journal:     entries,
	})
}
