package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the model loaded by the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel := newClient(cmd)
		defer cancel()

		info, err := c.ModelInfo(ctx)
		if err != nil {
			return err
		}
		fmt.Println("=== Model ===")
		fmt.Printf("Version: %s\n", info.Version)
		fmt.Printf("Type: %s\n", info.ModelType)
		fmt.Printf("Trained At: %s\n", info.TrainedAt.Format(time.RFC3339))
		fmt.Printf("Calibrated: %t\n", info.Calibrated)
		fmt.Printf("Background Rows: %d\n", info.BackgroundRows)
		for _, l := range info.BaseLearners {
			if l.Trees > 0 {
				fmt.Printf("Base Learner: %s (%s, %d trees)\n", l.Name, l.Kind, l.Trees)
			} else {
				fmt.Printf("Base Learner: %s (%s)\n", l.Name, l.Kind)
			}
		}
		fmt.Printf("Features: %s\n", joinNames(info.Features))
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show server health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel := newClient(cmd)
		defer cancel()

		h, err := c.Health(ctx)
		if err != nil {
			return err
		}
		return printJSON(h)
	},
}

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Show the prediction log summary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel := newClient(cmd)
		defer cancel()

		a, err := c.Analytics(ctx)
		if err != nil {
			return err
		}
		return printJSON(a)
	},
}
