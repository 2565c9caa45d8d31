package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/Veraticus/matflow/internal/model"
	"github.com/Veraticus/matflow/internal/reconcile"
	"github.com/Veraticus/matflow/internal/replace"
)

// ErrReviewAborted is returned when the operator quits the review.
var ErrReviewAborted = errors.New("review aborted")

var (
	materialTypes = []model.MaterialType{
		model.MaterialProductBrief,
		model.MaterialSalesDeck,
		model.MaterialDatasheet,
		model.MaterialCaseStudy,
		model.MaterialWhitepaper,
		model.MaterialTraining,
		model.MaterialOther,
	}
	audiences = []model.Audience{
		model.AudienceInternal,
		model.AudienceCustomerFacing,
		model.AudienceBoth,
	}
)

// Prompter runs the interactive review of a batch and answers replace
// confirmations.
type Prompter struct {
	writer io.Writer
	reader *NonBlockingReader
}

// NewPrompter creates a prompter reading from reader and writing to writer.
func NewPrompter(reader io.Reader, writer io.Writer) *Prompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}
	return &Prompter{
		reader: NewNonBlockingReader(reader),
		writer: writer,
	}
}

// ConfirmReplace asks whether an existing material should be overwritten.
// After a failed attempt the failure is shown and the question repeated.
func (p *Prompter) ConfirmReplace(ctx context.Context, snap replace.Snapshot) (bool, error) {
	if snap.Conflict == nil {
		return false, replace.ErrNoConflict
	}

	existing := snap.Conflict.ExistingMaterial
	var b strings.Builder
	if snap.Conflict.PendingPayload != nil {
		fmt.Fprintf(&b, "Uploading:  %s\n", snap.Conflict.PendingPayload.File.Name)
	}
	fmt.Fprintf(&b, "Existing:   %s (id %d)", existing.Name, existing.ID)
	if !existing.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "\nCreated:    %s", existing.CreatedAt.Format("2006-01-02 15:04"))
	}
	if snap.State == replace.Failed && snap.Message != "" {
		fmt.Fprintf(&b, "\n\n%s", FormatError(snap.Message))
	}

	if _, err := fmt.Fprintln(p.writer, RenderBox("Material already exists", b.String())); err != nil {
		return false, fmt.Errorf("failed to write conflict box: %w", err)
	}
	p.println("  [R] Replace the existing material")
	p.println("  [K] Keep the existing material and skip this file")

	choice, err := p.promptChoice(ctx, "Choice", []string{"r", "k"})
	if err != nil {
		return false, err
	}
	return choice == "r", nil
}

// Review shows the batch and lets the operator edit rows or change the
// threshold until they continue to upload.
func (p *Prompter) Review(ctx context.Context, files []model.File, store *reconcile.Store, hierarchy *reconcile.Hierarchy, threshold reconcile.Threshold) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		current := threshold.Threshold()
		suggestions := store.Suggestions()
		p.println()
		if err := WriteSuggestions(p.writer, suggestions, current); err != nil {
			return err
		}
		p.println()
		p.println(FormatInfo(fmt.Sprintf("%d of %d files ready to upload at threshold %.2f",
			store.ReadyCount(current), len(files), current)))
		p.println("  [number] Edit a row   [T] Threshold   [C] Continue   [Q] Quit")

		input, err := p.readLine(ctx, "Choice")
		if err != nil {
			return err
		}

		var stepErr error
		switch strings.ToLower(input) {
		case "c", "":
			return nil
		case "q":
			return ErrReviewAborted
		case "t":
			stepErr = p.changeThreshold(ctx, threshold)
		default:
			row, err := strconv.Atoi(input)
			if err != nil || row < 1 || row > len(suggestions) {
				p.println(FormatError("Invalid choice. Please try again."))
				continue
			}
			stepErr = p.editRow(ctx, store, hierarchy, row-1)
		}

		if stepErr != nil {
			if errors.Is(stepErr, ErrInputTerminated) || errors.Is(stepErr, ErrInputCancelled) || ctx.Err() != nil {
				return stepErr
			}
			p.println(FormatError(stepErr.Error()))
		}
	}
}

func (p *Prompter) changeThreshold(ctx context.Context, threshold reconcile.Threshold) error {
	input, err := p.readLine(ctx, fmt.Sprintf("New threshold (0-1, now %.2f)", threshold.Threshold()))
	if err != nil {
		return err
	}
	if input == "" {
		return nil
	}
	t, err := strconv.ParseFloat(input, 64)
	if err != nil {
		return fmt.Errorf("invalid threshold %q", input)
	}
	return threshold.SetThreshold(t)
}

func (p *Prompter) editRow(ctx context.Context, store *reconcile.Store, hierarchy *reconcile.Hierarchy, i int) error {
	edit, err := store.BeginEdit(i)
	if err != nil {
		return err
	}

	for {
		if _, err := fmt.Fprintln(p.writer, RenderBox("Editing "+edit.Suggestion().Filename, describeSuggestion(edit.Suggestion()))); err != nil {
			return fmt.Errorf("failed to write edit box: %w", err)
		}
		p.println("  [U] Universe  [C] Category  [P] Product  [T] Type  [A] Audience")
		p.println("  [N] New category  [W] New product  [S] Save  [X] Discard")

		choice, err := p.promptChoice(ctx, "Field", []string{"u", "c", "p", "t", "a", "n", "w", "s", "x"})
		if err != nil {
			return err
		}

		var stepErr error
		switch choice {
		case "u":
			stepErr = p.pickUniverse(ctx, edit, hierarchy)
		case "c":
			stepErr = p.pickCategory(ctx, edit, hierarchy)
		case "p":
			stepErr = p.pickProduct(ctx, edit, hierarchy)
		case "t":
			stepErr = p.pickMaterialType(ctx, edit)
		case "a":
			stepErr = p.pickAudience(ctx, edit)
		case "n":
			stepErr = p.createCategory(ctx, edit)
		case "w":
			stepErr = p.createProduct(ctx, edit)
		case "s":
			if err := edit.Save(); err != nil {
				return err
			}
			p.println(FormatSuccess("Saved " + edit.Suggestion().Filename))
			return nil
		case "x":
			return nil
		}

		if stepErr != nil {
			if errors.Is(stepErr, ErrInputTerminated) || errors.Is(stepErr, ErrInputCancelled) || ctx.Err() != nil {
				return stepErr
			}
			p.println(FormatError(stepErr.Error()))
		}
	}
}

func (p *Prompter) pickUniverse(ctx context.Context, edit *reconcile.Edit, hierarchy *reconcile.Hierarchy) error {
	universes, err := hierarchy.Universes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load universes: %w", err)
	}
	names := make([]string, len(universes))
	for i, u := range universes {
		names[i] = u.Name
	}
	idx, err := p.pickIndex(ctx, "Universe", names)
	if err != nil || idx < 0 {
		return err
	}
	edit.SetUniverse(universes[idx].ID)
	return nil
}

func (p *Prompter) pickCategory(ctx context.Context, edit *reconcile.Edit, hierarchy *reconcile.Hierarchy) error {
	draft := edit.Suggestion()
	if draft.UniverseID == nil {
		return errors.New("select a universe first")
	}
	categories, err := hierarchy.Categories(ctx, *draft.UniverseID)
	if err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.Name
	}
	idx, err := p.pickIndex(ctx, "Category", names)
	if err != nil || idx < 0 {
		return err
	}
	return edit.SetCategory(categories[idx].ID)
}

func (p *Prompter) pickProduct(ctx context.Context, edit *reconcile.Edit, hierarchy *reconcile.Hierarchy) error {
	draft := edit.Suggestion()
	if draft.UniverseID == nil {
		return errors.New("select a universe first")
	}
	products, err := hierarchy.Products(ctx, *draft.UniverseID, draft.CategoryID)
	if err != nil {
		return fmt.Errorf("failed to load products: %w", err)
	}
	names := make([]string, len(products))
	for i, pr := range products {
		names[i] = pr.Name
	}
	idx, err := p.pickIndex(ctx, "Product", names)
	if err != nil || idx < 0 {
		return err
	}
	return edit.SetProduct(products[idx].ID)
}

func (p *Prompter) pickMaterialType(ctx context.Context, edit *reconcile.Edit) error {
	names := make([]string, len(materialTypes))
	for i, t := range materialTypes {
		names[i] = string(t)
	}
	idx, err := p.pickIndex(ctx, "Material type", names)
	if err != nil || idx < 0 {
		return err
	}

	var description string
	if materialTypes[idx] == model.MaterialOther {
		description, err = p.readLine(ctx, "Describe the material")
		if err != nil {
			return err
		}
	}
	edit.SetMaterialType(materialTypes[idx], description)
	return nil
}

func (p *Prompter) pickAudience(ctx context.Context, edit *reconcile.Edit) error {
	names := make([]string, len(audiences))
	for i, a := range audiences {
		names[i] = string(a)
	}
	idx, err := p.pickIndex(ctx, "Audience", names)
	if err != nil || idx < 0 {
		return err
	}
	edit.SetAudience(audiences[idx])
	return nil
}

func (p *Prompter) createCategory(ctx context.Context, edit *reconcile.Edit) error {
	name, err := p.readLine(ctx, "New category name")
	if err != nil || name == "" {
		return err
	}
	category, err := edit.CreateCategory(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	p.println(FormatSuccess(fmt.Sprintf("Created category %s (id %d)", category.Name, category.ID)))
	return nil
}

func (p *Prompter) createProduct(ctx context.Context, edit *reconcile.Edit) error {
	name, err := p.readLine(ctx, "New product name")
	if err != nil || name == "" {
		return err
	}
	product, err := edit.CreateProduct(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	p.println(FormatSuccess(fmt.Sprintf("Created product %s (id %d)", product.Name, product.ID)))
	return nil
}

// pickIndex lists options and returns the chosen index, or -1 when the
// operator enters nothing.
func (p *Prompter) pickIndex(ctx context.Context, prompt string, options []string) (int, error) {
	if len(options) == 0 {
		return -1, fmt.Errorf("no %s options available", strings.ToLower(prompt))
	}
	for i, o := range options {
		p.println(fmt.Sprintf("  %2d. %s", i+1, o))
	}

	for {
		input, err := p.readLine(ctx, prompt+" (number, empty to cancel)")
		if err != nil {
			return -1, err
		}
		if input == "" {
			return -1, nil
		}
		n, err := strconv.Atoi(input)
		if err == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}
		p.println(FormatError("Invalid choice. Please try again."))
	}
}

func (p *Prompter) promptChoice(ctx context.Context, prompt string, validChoices []string) (string, error) {
	for {
		input, err := p.readLine(ctx, prompt)
		if err != nil {
			return "", err
		}
		choice := strings.ToLower(input)
		for _, valid := range validChoices {
			if choice == valid {
				return choice, nil
			}
		}
		p.println(FormatError("Invalid choice. Please try again."))
	}
}

func (p *Prompter) readLine(ctx context.Context, prompt string) (string, error) {
	if _, err := fmt.Fprint(p.writer, FormatPrompt(prompt)); err != nil {
		return "", fmt.Errorf("failed to write prompt: %w", err)
	}
	return p.reader.ReadLine(ctx)
}

func (p *Prompter) println(a ...any) {
	if _, err := fmt.Fprintln(p.writer, a...); err != nil {
		slog.Warn("Failed to write to terminal", "error", err)
	}
}

func describeSuggestion(s model.FileSuggestion) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Universe:  %s\n", nameOrID(s.UniverseName, s.UniverseID))
	fmt.Fprintf(&b, "Category:  %s\n", nameOrID(s.CategoryName, s.CategoryID))
	fmt.Fprintf(&b, "Product:   %s\n", nameOrID(s.ProductName, s.ProductID))
	fmt.Fprintf(&b, "Type:      %s", valueOrDash(string(s.MaterialType)))
	if s.MaterialType == model.MaterialOther {
		fmt.Fprintf(&b, " (%s)", valueOrDash(s.OtherTypeDescription))
	}
	fmt.Fprintf(&b, "\nAudience:  %s", valueOrDash(string(s.Audience)))
	if s.Reasoning != "" {
		fmt.Fprintf(&b, "\n\n%s", SubtleStyle.Render(s.Reasoning))
	}
	return b.String()
}

func nameOrID(name string, id *int) string {
	switch {
	case name != "":
		return name
	case id != nil:
		return fmt.Sprintf("#%d", *id)
	default:
		return "-"
	}
}

func valueOrDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
