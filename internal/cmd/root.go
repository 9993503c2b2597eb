// Package cmd implements the upcall CLI.
package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/upcall/upcall-cli/internal/debug"
	"github.com/upcall/upcall-cli/internal/outfmt"
	"github.com/upcall/upcall-cli/internal/request"
)

// rootFlags holds global CLI flags.
type rootFlags struct {
	Profile string
	Output  string
	JQ      string
	Debug   bool
	Timeout time.Duration
}

// flags is package-level mutable state reset at the start of every
// Execute() call; tests depend on that reset for isolation.
var flags = rootFlags{
	Output:  defaultOutput(),
	Timeout: request.DefaultTimeout,
}

func defaultOutput() string {
	if v := strings.TrimSpace(os.Getenv("UPCALL_OUTPUT")); v != "" {
		return v
	}
	return "json"
}

// loadEnvFile loads ~/.upcall/.env when present. Variables already set in
// the environment are not overwritten, so explicit exports win.
func loadEnvFile() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	path := filepath.Join(home, ".upcall", ".env")
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

// Execute runs the root command.
func Execute(ctx context.Context, args []string) error {
	loadEnvFile()

	flags = rootFlags{
		Output:  defaultOutput(),
		Timeout: request.DefaultTimeout,
	}

	root := &cobra.Command{
		Use:   "upcall",
		Short: "Declarative REST API calls with media upload support",
		Long: `upcall turns endpoint templates stored in profiles into outbound HTTP
requests: it merges default and per-call parameters, expands RFC 6570 URL
templates, and streams plain, media, and multipart upload bodies.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			mode, err := outfmt.Parse(flags.Output)
			if err != nil {
				return err
			}
			debug.SetupLogger(flags.Debug)
			ctx := cmd.Context()
			ctx = debug.WithDebug(ctx, flags.Debug)
			ctx = outfmt.WithMode(ctx, mode)
			cmd.SetContext(ctx)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.Profile, "profile", "", "profile to use (default: current profile)")
	pf.StringVarP(&flags.Output, "output", "o", flags.Output, "output format: json, jsonl, raw")
	pf.StringVar(&flags.JQ, "jq", "", "jq expression applied to JSON output")
	pf.BoolVar(&flags.Debug, "debug", false, "enable debug logging")
	pf.DurationVar(&flags.Timeout, "timeout", flags.Timeout, "request timeout")

	root.AddCommand(
		newCallCmd(),
		newUploadCmd(),
		newBatchCmd(),
		newAuthCmd(),
		newEndpointCmd(),
		newCacheCmd(),
		newVersionCmd(),
	)

	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
