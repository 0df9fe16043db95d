//go:build ignore

package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"

	"heart-risk/internal/features"
)

func main() {
	var (
		output  = flag.String("o", "data/patients.csv", "CSV output path")
		rows    = flag.Int("rows", 100, "Number of patient rows to generate")
		invalid = flag.Float64("invalid", 0.05, "Fraction of rows with one out-of-range value")
		seed    = flag.Uint64("seed", 1, "Random seed")
	)
	flag.Parse()

	fmt.Printf("Generating %d sample patients...\n", *rows)
	fmt.Printf("  Invalid fraction: %.2f\n", *invalid)
	fmt.Printf("  Output: %s\n", *output)

	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}
	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	w := csv.NewWriter(f)
	if err := w.Write(features.Names()); err != nil {
		log.Fatalf("Failed to write header: %v", err)
	}

	schema := features.Schema()
	bad := 0
	for i := 0; i < *rows; i++ {
		record := make([]string, len(schema))
		for j, feat := range schema {
			record[j] = formatValue(feat, generateValue(rng, feat))
		}
		if rng.Float64() < *invalid {
			j := rng.IntN(len(schema))
			record[j] = formatValue(schema[j], schema[j].Max+1)
			bad++
		}
		if err := w.Write(record); err != nil {
			log.Fatalf("Failed to write row %d: %v", i+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		log.Fatalf("Failed to flush CSV: %v", err)
	}

	fmt.Printf("Done: %d rows, %d with an invalid value\n", *rows, bad)
}

// generateValue draws continuous features from a clipped normal around the
// middle of their clinical range and discrete ones uniformly.
func generateValue(rng *rand.Rand, f features.Feature) float64 {
	if f.Kind != features.Continuous {
		return float64(int(f.Min) + rng.IntN(int(f.Max-f.Min)+1))
	}
	mid := (f.Min + f.Max) / 2
	spread := (f.Max - f.Min) / 8
	v := mid + rng.NormFloat64()*spread
	return math.Max(f.Min, math.Min(f.Max, v))
}

func formatValue(f features.Feature, v float64) string {
	if f.Name == "oldpeak" {
		return strconv.FormatFloat(math.Round(v*10)/10, 'f', 1, 64)
	}
	return strconv.Itoa(int(math.Round(v)))
}
