package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Veraticus/matflow/internal/api"
	"github.com/Veraticus/matflow/internal/cli"
	"github.com/Veraticus/matflow/internal/common"
	"github.com/Veraticus/matflow/internal/duplicate"
	"github.com/Veraticus/matflow/internal/model"
	"github.com/Veraticus/matflow/internal/reconcile"
	"github.com/Veraticus/matflow/internal/replace"
	"github.com/Veraticus/matflow/internal/storage"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type uploadOptions struct {
	materialType     string
	audience         string
	otherDescription string
	universeID       int
	productID        int
	replace          bool
	keep             bool
}

func uploadCmd() *cobra.Command {
	var opts uploadOptions

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a single file with explicit metadata",
		Long: `Upload a single file with explicit metadata.

When a material already exists for the product and type you are asked
whether to replace it, unless --replace or --keep decides up front.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVar(&opts.universeID, "universe", 0, "universe id")
	cmd.Flags().Int("category", 0, "category id")
	cmd.Flags().IntVar(&opts.productID, "product", 0, "product id")
	cmd.Flags().StringVar(&opts.materialType, "type", "", "material type (defaults.material_type when omitted)")
	cmd.Flags().StringVar(&opts.audience, "audience", "", "audience (defaults.audience when omitted)")
	cmd.Flags().StringVar(&opts.otherDescription, "other-description", "", "description for --type other")
	cmd.Flags().BoolVar(&opts.replace, "replace", false, "replace an existing material without asking")
	cmd.Flags().BoolVar(&opts.keep, "keep", false, "keep an existing material without asking")
	cmd.MarkFlagsMutuallyExclusive("replace", "keep")
	_ = cmd.MarkFlagRequired("universe")
	_ = cmd.MarkFlagRequired("product")

	return cmd
}

func runUpload(cmd *cobra.Command, path string, opts uploadOptions) error {
	ctx, release := withInterrupts(cmd.Context(), "")
	defer release()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	file, err := model.NewLocalFile(path)
	if err != nil {
		return common.NewUserError("cannot read "+path, err)
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

	suggestion := model.FileSuggestion{
		Filename:             file.Name,
		UniverseID:           model.IntPtr(opts.universeID),
		CategoryID:           optionalID(cmd, "category"),
		ProductID:            model.IntPtr(opts.productID),
		MaterialType:         model.MaterialType(opts.materialType),
		Audience:             model.Audience(opts.audience),
		OtherTypeDescription: opts.otherDescription,
		Confidence:           model.ManualConfidence,
	}
	if suggestion.MaterialType == "" {
		suggestion.MaterialType = cfg.DefaultMaterialType
	}
	if suggestion.Audience == "" {
		suggestion.Audience = cfg.DefaultAudience
	}
	if missing := suggestion.MissingFields(); len(missing) > 0 {
		return common.NewUserError("missing "+strings.Join(missing, ", "), common.ErrMissingFields)
	}

	// Names are needed for the duplicate check, which matches by product name.
	hierarchy := reconcile.NewHierarchy(client)
	hierarchy.Warm(ctx, []model.FileSuggestion{suggestion})
	if !hierarchy.Consistent(suggestion) {
		return common.NewUserError("the category must belong to the universe and the product to the category",
			reconcile.ErrHierarchyMismatch)
	}
	hierarchy.FillNames(&suggestion)

	machine := replace.New(client,
		replace.WithChecker(duplicate.NewResolver(client)),
		replace.WithOnReplaced(func(*model.Material) { hierarchy.Invalidate() }),
	)
	u := &singleUpload{
		machine:  machine,
		prompter: cli.NewPrompter(os.Stdin, cmd.OutOrStdout()),
		opts:     opts,
		file:     file,
	}

	material, status, err := u.run(ctx, model.NewUploadRequest(file, suggestion))
	journalSingle(ctx, store, file, suggestion, material, status, err)

	out := cmd.OutOrStdout()
	switch {
	case err != nil:
		return err
	case status == model.JournalSkipped:
		fmt.Fprintln(out, cli.FormatInfo("Kept the existing material; nothing uploaded"))
	case status == model.JournalReplaced:
		fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Replaced with material %d", material.ID)))
	default:
		fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Uploaded as material %d", material.ID)))
	}
	return nil
}

type singleUpload struct {
	machine  *replace.Machine
	prompter *cli.Prompter
	file     model.File
	opts     uploadOptions
}

// run submits req and walks the replace confirmation until the file is
// uploaded, the existing material is kept, or an error ends it.
func (u *singleUpload) run(ctx context.Context, req model.UploadRequest) (*model.Material, string, error) {
	progress := u.progress()

	material, err := u.machine.Submit(ctx, req, progress)
	if err == nil {
		return material, model.JournalUploaded, nil
	}
	if !errors.Is(err, replace.ErrConflictDetected) {
		return nil, model.JournalFailed, err
	}

	for {
		ok, err := u.decide(ctx)
		if err != nil {
			u.machine.Cancel()
			return nil, model.JournalFailed, err
		}
		if !ok {
			u.machine.Cancel()
			return nil, model.JournalSkipped, nil
		}

		material, err := u.machine.Confirm(ctx, u.progress())
		if err == nil {
			return material, model.JournalReplaced, nil
		}
		if u.opts.replace || u.machine.State() != replace.Failed || ctx.Err() != nil {
			u.machine.Cancel()
			return nil, model.JournalFailed, err
		}
		slog.Warn("Replace failed, asking again", "file", u.file.Name, "error", err)
	}
}

func (u *singleUpload) decide(ctx context.Context) (bool, error) {
	switch {
	case u.opts.replace:
		return true, nil
	case u.opts.keep:
		return false, nil
	default:
		return u.prompter.ConfirmReplace(ctx, u.machine.Snapshot())
	}
}

func (u *singleUpload) progress() api.ProgressFunc {
	return cli.ByteProgress(os.Stderr, u.file.Name)
}

func journalSingle(ctx context.Context, store *storage.SQLiteStorage, file model.File, s model.FileSuggestion, material *model.Material, status string, err error) {
	entry := model.JournalEntry{
		BatchID:      "single-" + uuid.NewString(),
		Filename:     file.Name,
		ProductName:  s.ProductName,
		MaterialType: s.MaterialType,
		Status:       status,
		CreatedAt:    time.Now().UTC(),
	}
	if material != nil {
		entry.MaterialID = model.IntPtr(material.ID)
	}
	if err != nil {
		entry.Detail = err.Error()
	}
	if err := store.RecordUpload(context.WithoutCancel(ctx), entry); err != nil {
		slog.Warn("Failed to journal upload", "file", file.Name, "error", err)
	}
}
