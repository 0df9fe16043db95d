package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"heart-risk/internal/engine"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
)

var (
	predictFile   string
	predictSet    []string
	predictAsJSON bool
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Score one clinical record",
	Long: `Score one record read from a JSON file (-f) and/or given field by field
with --set name=value. --set values override the file.`,
	Example: `  heartctl predict -f record.json
  heartctl predict --set age=63 --set sex=1 --set cp=3 ...`,
	Args: cobra.NoArgs,
	RunE: runPredict,
}

func init() {
	predictCmd.Flags().StringVarP(&predictFile, "file", "f", "", "JSON file with one record")
	predictCmd.Flags().StringArrayVar(&predictSet, "set", nil, "Field value as name=value (repeatable)")
	predictCmd.Flags().BoolVar(&predictAsJSON, "json", false, "Print the raw JSON result")
}

func runPredict(cmd *cobra.Command, args []string) error {
	record := map[string]any{}
	if predictFile != "" {
		data, err := os.ReadFile(predictFile)
		if err != nil {
			return fmt.Errorf("failed to read record: %w", err)
		}
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("failed to parse record: %w", err)
		}
	}
	if err := applyFieldValues(record, predictSet); err != nil {
		return err
	}
	if len(record) == 0 {
		return errors.New("no input: use -f record.json or --set name=value")
	}

	c, ctx, cancel := newClient(cmd)
	defer cancel()

	res, err := c.PredictOne(ctx, record)
	if err != nil {
		return err
	}
	if predictAsJSON {
		return printJSON(res)
	}
	printPrediction(res)
	return nil
}

// applyFieldValues merges name=value pairs into record. Numeric values are
// sent as numbers; anything else is left for the server to reject.
func applyFieldValues(record map[string]any, pairs []string) error {
	for _, s := range pairs {
		name, value, ok := strings.Cut(s, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		if !ok || name == "" {
			return fmt.Errorf("expected name=value, got %q", s)
		}
		value = strings.TrimSpace(value)
		if v, err := cast.ToFloat64E(value); err == nil {
			record[name] = v
		} else {
			record[name] = value
		}
	}
	return nil
}

func printPrediction(res *engine.PredictionResult) {
	label := "Negative"
	if res.Prediction == 1 {
		label = "Positive"
	}
	fmt.Println("=== Prediction ===")
	fmt.Printf("Prediction: %s\n", label)
	fmt.Printf("Probability: %.1f%%\n", res.Probability*100)
	fmt.Printf("Risk Level: %s\n", res.RiskLevel)
	fmt.Printf("Baseline: %.1f%%\n", res.BaselineProbability*100)
	fmt.Printf("Model Version: %s\n", res.ModelVersion)
	fmt.Println("\n=== Contributions ===")
	for _, c := range res.Contributions {
		fmt.Printf("%-10s %+.4f\n", c.Feature, c.Contribution)
	}
}
