// Package report renders a completed batch for people and spreadsheets.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"heart-risk/internal/engine"
	"heart-risk/internal/risk"

	"github.com/rs/zerolog/log"
)

// DefaultRowLimit caps the rows shown in the text summary table.
const DefaultRowLimit = 50

const topFeatures = 5

// Format is an output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat accepts text, csv or json, case-insensitively. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatText, FormatCSV, FormatJSON:
		return f, nil
	case "txt":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}

// ContentType is the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatText:
		return "text/plain; charset=utf-8"
	case FormatCSV:
		return "text/csv"
	default:
		return "application/json"
	}
}

// Extension is the file suffix for the format.
func (f Format) Extension() string {
	if f == FormatText {
		return "txt"
	}
	return string(f)
}

// Reporter renders one BatchResult.
type Reporter struct {
	batch    *engine.BatchResult
	rowLimit int
	now      func() time.Time
}

// NewReporter creates a reporter. rowLimit <= 0 uses DefaultRowLimit.
func NewReporter(batch *engine.BatchResult, rowLimit int) *Reporter {
	if rowLimit <= 0 {
		rowLimit = DefaultRowLimit
	}
	return &Reporter{batch: batch, rowLimit: rowLimit, now: time.Now}
}

// FileName is the suggested attachment name for format.
func (r *Reporter) FileName(f Format) string {
	return fmt.Sprintf("batch_%s.%s", r.batch.ID, f.Extension())
}

// Render writes the batch in the given format.
func (r *Reporter) Render(w io.Writer, f Format) error {
	switch f {
	case FormatText:
		return r.writeSummary(w)
	case FormatCSV:
		return r.writeRows(w)
	case FormatJSON:
		return r.writeJSON(w)
	default:
		return fmt.Errorf("unknown report format %q", f)
	}
}

// GenerateReport writes the summary, row log and JSON files into dir.
func (r *Reporter) GenerateReport(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, f := range []Format{FormatText, FormatCSV, FormatJSON} {
		path := filepath.Join(dir, r.FileName(f))
		if err := r.writeFile(path, f); err != nil {
			return err
		}
		log.Info().Str("file", path).Str("format", string(f)).Msg("batch report generated")
	}
	return nil
}

func (r *Reporter) writeFile(path string, f Format) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s report: %w", f, err)
	}
	if err := r.Render(file, f); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s report: %w", f, err)
	}
	return file.Close()
}

type categoryStats struct {
	Count       int
	Probability float64 // mean over rows in the category
}

func (r *Reporter) calculateCategoryStats() map[risk.Category]categoryStats {
	sums := make(map[risk.Category]float64)
	stats := make(map[risk.Category]categoryStats)
	for _, o := range r.batch.Rows {
		if !o.OK() {
			continue
		}
		s := stats[o.Result.RiskLevel]
		s.Count++
		stats[o.Result.RiskLevel] = s
		sums[o.Result.RiskLevel] += o.Result.Probability
	}
	for c, s := range stats {
		s.Probability = sums[c] / float64(s.Count)
		stats[c] = s
	}
	return stats
}

func (r *Reporter) writeSummary(w io.Writer) error {
	b := r.batch

	fmt.Fprintf(w, "HEART DISEASE RISK BATCH REPORT\n")
	fmt.Fprintf(w, "===============================\n\n")

	fmt.Fprintf(w, "Generated At: %s\n", r.now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Batch ID: %s\n", b.ID)
	fmt.Fprintf(w, "Status: %s\n", b.Status)
	if b.ModelVersion != "" {
		fmt.Fprintf(w, "Model Version: %s\n", b.ModelVersion)
	}
	fmt.Fprintf(w, "Duration: %s\n\n", b.Duration())

	if b.Status == engine.StatusFailed {
		fmt.Fprintf(w, "BATCH FAILED\n")
		fmt.Fprintf(w, "------------\n")
		fmt.Fprintf(w, "%s\n", b.SystemMessage)
		return nil
	}

	fmt.Fprintf(w, "TOTALS\n")
	fmt.Fprintf(w, "------\n")
	fmt.Fprintf(w, "Rows: %d\n", b.Total)
	fmt.Fprintf(w, "Succeeded: %d\n", b.Succeeded)
	fmt.Fprintf(w, "Failed: %d\n\n", b.Failed)

	fmt.Fprintf(w, "RISK DISTRIBUTION\n")
	fmt.Fprintf(w, "-----------------\n")
	stats := r.calculateCategoryStats()
	for _, c := range b.Categories {
		s := stats[c]
		if s.Count == 0 {
			fmt.Fprintf(w, "%s: %d\n", c, b.RiskHistogram[c])
			continue
		}
		fmt.Fprintf(w, "%s: %d (mean probability %.1f%%)\n", c, b.RiskHistogram[c], s.Probability*100)
	}

	if len(b.FeatureImportance) > 0 && b.Succeeded > 0 {
		fmt.Fprintf(w, "\nTOP FEATURES\n")
		fmt.Fprintf(w, "------------\n")
		for i, fi := range b.FeatureImportance {
			if i == topFeatures {
				break
			}
			fmt.Fprintf(w, "%d. %s (mean |contribution| %.4f, mean %+.4f)\n", i+1, fi.Feature, fi.MeanAbsolute, fi.MeanContribution)
		}
	}

	shown := len(b.Rows)
	if shown > r.rowLimit {
		shown = r.rowLimit
	}
	fmt.Fprintf(w, "\nPREDICTIONS\n")
	fmt.Fprintf(w, "-----------\n")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Row\tOutcome\tPrediction\tProbability\tRisk Level\tTop Feature / Error")
	for _, o := range b.Rows[:shown] {
		if o.OK() {
			fmt.Fprintf(tw, "%d\tok\t%s\t%.1f%%\t%s\t%s\n",
				o.Row+1, predictionLabel(o.Result.Prediction), o.Result.Probability*100, o.Result.RiskLevel, o.Result.TopFeature())
			continue
		}
		fmt.Fprintf(tw, "%d\terror\t-\t-\t-\t%s\n", o.Row+1, o.Err.Err)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if shown < len(b.Rows) {
		fmt.Fprintf(w, "\n(showing first %d of %d rows)\n", shown, len(b.Rows))
	}
	return nil
}

func (r *Reporter) writeRows(w io.Writer) error {
	writer := csv.NewWriter(w)

	header := []string{
		"Row", "Outcome", "Prediction", "Probability", "Risk Level",
		"Baseline", "Top Feature", "Top Contribution", "Error Kind", "Error",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, o := range r.batch.Rows {
		var record []string
		if o.OK() {
			top, contrib := "", ""
			if len(o.Result.Contributions) > 0 {
				top = o.Result.Contributions[0].Feature
				contrib = strconv.FormatFloat(o.Result.Contributions[0].Contribution, 'f', 6, 64)
			}
			record = []string{
				strconv.Itoa(o.Row + 1),
				"ok",
				predictionLabel(o.Result.Prediction),
				fmt.Sprintf("%.6f", o.Result.Probability),
				string(o.Result.RiskLevel),
				fmt.Sprintf("%.6f", o.Result.BaselineProbability),
				top,
				contrib,
				"",
				"",
			}
		} else {
			record = []string{strconv.Itoa(o.Row + 1), "error", "", "", "", "", "", "", o.Err.Kind(), o.Err.Err.Error()}
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func (r *Reporter) writeJSON(w io.Writer) error {
	report := map[string]interface{}{
		"batch":        r.batch,
		"generated_at": r.now().UTC(),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return nil
}

func predictionLabel(p int) string {
	if p == 1 {
		return "Positive"
	}
	return "Negative"
}
