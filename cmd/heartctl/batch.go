package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"heart-risk/internal/report"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	batchFile   string
	batchFormat string
	batchOutput string
)

var batchCmd = &cobra.Command{
	Use:     "batch",
	Short:   "Score a CSV file of records",
	Example: `  heartctl batch -f patients.csv --format text -o report.txt`,
	Args:    cobra.NoArgs,
	RunE:    runBatch,
}

func init() {
	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "", "CSV file with a header row")
	batchCmd.Flags().StringVar(&batchFormat, "format", "text", "Report format: json, text, csv")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "Write the report to this file instead of stdout")
}

func runBatch(cmd *cobra.Command, args []string) error {
	if batchFile == "" {
		return errors.New("batch requires -f rows.csv")
	}
	format, err := report.ParseFormat(batchFormat)
	if err != nil {
		return err
	}

	f, err := os.Open(batchFile)
	if err != nil {
		return fmt.Errorf("failed to open CSV: %w", err)
	}
	defer f.Close()

	c, ctx, cancel := newClient(cmd)
	defer cancel()

	start := time.Now()
	reply, err := c.PredictBatchCSV(ctx, f, format)
	if err != nil {
		return err
	}
	log.Info().Str("file", batchFile).Dur("duration", time.Since(start)).Msg("batch scored")

	var w io.Writer = os.Stdout
	if batchOutput != "" {
		out, err := os.Create(batchOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer out.Close()
		w = out
	}
	if _, err := w.Write(reply.Report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if batchOutput != "" {
		fmt.Printf("Report written to %s\n", batchOutput)
	}
	return nil
}
