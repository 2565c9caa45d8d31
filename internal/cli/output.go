package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Veraticus/matflow/internal/model"
	"github.com/Veraticus/matflow/internal/reconcile"
)

// WriteSuggestions prints one row per suggestion with its readiness at
// threshold.
func WriteSuggestions(out io.Writer, suggestions []model.FileSuggestion, threshold float64) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		HeaderStyle.Render("#"),
		HeaderStyle.Render("File"),
		HeaderStyle.Render("Confidence"),
		HeaderStyle.Render("Universe / Category / Product"),
		HeaderStyle.Render("Type"),
		HeaderStyle.Render("Audience"),
		HeaderStyle.Render("Ready"))

	for i, s := range suggestions {
		ready := ErrorStyle.Render(ErrorIcon)
		if reconcile.IsReady(s, threshold) {
			ready = SuccessStyle.Render(SuccessIcon)
		}
		path := strings.Join([]string{
			nameOrID(s.UniverseName, s.UniverseID),
			nameOrID(s.CategoryName, s.CategoryID),
			nameOrID(s.ProductName, s.ProductID),
		}, " / ")
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i+1,
			s.Filename,
			FormatConfidence(s.Confidence, s.IsManual(), threshold),
			path,
			valueOrDash(string(s.MaterialType)),
			valueOrDash(string(s.Audience)),
			ready)
	}
	return w.Flush()
}

// WriteResult prints the summary of an upload run.
func WriteResult(out io.Writer, result model.BatchResult) error {
	var b strings.Builder
	for _, o := range result.Successes {
		fmt.Fprintln(&b, FormatSuccess(fmt.Sprintf("%s: %s", o.Filename, o.Detail)))
	}
	for _, o := range result.Failures {
		fmt.Fprintln(&b, FormatError(fmt.Sprintf("%s: %s", o.Filename, o.Detail)))
	}
	fmt.Fprintf(&b, "\n%s uploaded, %s failed",
		SuccessStyle.Render(fmt.Sprint(result.SuccessCount)),
		ErrorStyle.Render(fmt.Sprint(result.FailureCount)))

	_, err := fmt.Fprintln(out, RenderBox("Upload results", b.String()))
	return err
}

// WriteJournal prints journal entries, newest first as given.
func WriteJournal(out io.Writer, entries []model.JournalEntry) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
		HeaderStyle.Render("Time"),
		HeaderStyle.Render("Batch"),
		HeaderStyle.Render("File"),
		HeaderStyle.Render("Status"),
		HeaderStyle.Render("Product"),
		HeaderStyle.Render("Detail"))
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04"),
			shortID(e.BatchID),
			e.Filename,
			styleStatus(e.Status),
			valueOrDash(e.ProductName),
			e.Detail)
	}
	return w.Flush()
}

// WriteBatches prints stored batch summaries.
func WriteBatches(out io.Writer, batches []model.BatchSummary) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
		HeaderStyle.Render("Batch"),
		HeaderStyle.Render("Started"),
		HeaderStyle.Render("Files"),
		HeaderStyle.Render("Succeeded"),
		HeaderStyle.Render("Failed"))
	for _, b := range batches {
		started := b.StartedAt.Local().Format("2006-01-02 15:04")
		if b.FinishedAt == nil {
			started += " (unfinished)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", b.ID, started, b.FileCount, b.SuccessCount, b.FailureCount)
	}
	return w.Flush()
}

// WriteNamed prints an id/name listing of hierarchy entries.
func WriteNamed(out io.Writer, rows [][2]string) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", HeaderStyle.Render("ID"), HeaderStyle.Render("Name"))
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\n", r[0], r[1])
	}
	return w.Flush()
}

// FormatElapsed renders a duration the way progress output does.
func FormatElapsed(d time.Duration) string {
	return d.Round(100 * time.Millisecond).String()
}

func styleStatus(status string) string {
	switch status {
	case model.JournalUploaded, model.JournalReplaced:
		return SuccessStyle.Render(status)
	case model.JournalSkipped:
		return WarningStyle.Render(status)
	default:
		return ErrorStyle.Render(status)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
