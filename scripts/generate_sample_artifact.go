//go:build ignore

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"heart-risk/internal/engine"
	"heart-risk/internal/ml"
)

func main() {
	output := flag.String("o", "models/heart_model.json", "Artifact output path")
	flag.Parse()

	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	a := ml.SampleArtifact()
	if err := a.Save(*output); err != nil {
		log.Fatalf("Failed to write artifact: %v", err)
	}

	// Reload through the engine so a broken bundle never lands on disk unnoticed.
	if _, err := engine.Load(*output, engine.Options{}); err != nil {
		log.Fatalf("Written artifact does not load: %v", err)
	}

	fmt.Printf("Sample artifact written to %s\n", *output)
	fmt.Printf("  Version: %s\n", a.Version)
	fmt.Printf("  Base learners: %d\n", len(a.BaseLearners))
	fmt.Printf("  Background rows: %d\n", len(a.Background))
}
