// Package cli implements syncctl, a small client for the sync api.
package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	APIURL  string
	UserID  string
	Format  string // "json" | "text"
	Timeout time.Duration

	// HTTPClient is used for every request. Tests replace it.
	HTTPClient *http.Client
}

// envDefaults are the flag defaults read from the environment.
type envDefaults struct {
	APIURL string `env:"SYNCCTL_API_URL" envDefault:"http://localhost:8080"`
	UserID string `env:"SYNCCTL_USER"`
	Format string `env:"SYNCCTL_FORMAT" envDefault:"text"`
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for syncctl. Flag defaults come from the environment.
func NewRootCommand() (*cobra.Command, error) {
	var defaults envDefaults
	if err := env.Parse(&defaults); err != nil {
		return nil, fmt.Errorf("can't parse env variables: %w", err)
	}
	opts := &RootOptions{APIURL: defaults.APIURL, UserID: defaults.UserID, Format: defaults.Format}

	cmd := &cobra.Command{
		Use:   "syncctl",
		Short: "Submit collection syncs and follow their progress",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.HTTPClient == nil {
				opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.APIURL, "api", opts.APIURL, "sync api base url")
	cmd.PersistentFlags().StringVar(&opts.UserID, "user", opts.UserID, "user id sent in the trusted user header")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", opts.Format, "output format (json|text)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 0, "request timeout, 0 for none (streams stay open)")

	cmd.AddCommand(NewImportCSVCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewSessionCommand(opts))

	return cmd, nil
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
