package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	server  string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "leadctl",
		Short:         "Administer lead engagement job schedules and calls",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv("LEADCTL_SERVER")
	if server == "" {
		server = "http://localhost:8080"
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", server, "API server base URL")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "request timeout")

	cmd.AddCommand(newSchedulesCmd(opts), newCallNowCmd(opts))
	return cmd
}

func (o *rootOptions) client() *apiClient {
	return newAPIClient(o.server, o.timeout)
}
