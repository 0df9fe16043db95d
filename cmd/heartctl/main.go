package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"heart-risk/internal/client"
	"heart-risk/internal/common"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "heartctl",
	Short: "Command line client for the heart-risk prediction server",
	Long: `heartctl scores clinical records against a running heart-risk server,
uploads CSV batches for reports, and inspects the loaded model.

The server URL comes from --url or the HEART_RISK_URL environment variable.`,
	Version:       common.DefaultAPIVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(viper.GetString("log_level"))
	},
}

func init() {
	rootCmd.PersistentFlags().String("url", common.DefaultServerURL, "Server base URL")
	rootCmd.PersistentFlags().Duration("timeout", 60*time.Second, "Request timeout")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error")

	_ = viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
	_ = viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.SetEnvPrefix("HEART_RISK")
	viper.AutomaticEnv()

	rootCmd.AddCommand(predictCmd, batchCmd, infoCmd, healthCmd, analyticsCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("heartctl version %s\n", rootCmd.Version))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// newClient builds a client and a request context from the bound settings.
func newClient(cmd *cobra.Command) (*client.Client, context.Context, context.CancelFunc) {
	timeout := viper.GetDuration("timeout")
	c := client.New(viper.GetString("url"), timeout)
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	return c, ctx, cancel
}

func printError(err error) {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Violations != nil {
		fmt.Fprintf(os.Stderr, "Input rejected (%d):\n", apiErr.StatusCode)
		for _, f := range apiErr.Violations.Missing {
			fmt.Fprintf(os.Stderr, "  %s: missing\n", f)
		}
		for _, f := range apiErr.Violations.Unexpected {
			fmt.Fprintf(os.Stderr, "  %s: unexpected field\n", f)
		}
		for _, v := range apiErr.Violations.Invalid {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", v.Field, v.Reason)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func joinNames(names []string) string { return strings.Join(names, ", ") }
