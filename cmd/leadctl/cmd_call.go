package main

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type callResult struct {
	ExternalCallID string `json:"externalCallId"`
	LeadID         string `json:"leadId"`
	JobType        string `json:"jobType"`
	Status         string `json:"status"`
}

func newCallNowCmd(opts *rootOptions) *cobra.Command {
	var jobType string
	cmd := &cobra.Command{
		Use:   "call-now <lead-id>",
		Short: "Place a call to one lead immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("call-now: invalid lead id %q: %w", args[0], err)
			}
			var out callResult
			body := map[string]string{"jobType": jobType}
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/api/v1/leads/"+id.String()+"/call", body, &out); err != nil {
				return fmt.Errorf("call-now: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Placed %s call %s for lead %s (%s)\n", out.JobType, out.ExternalCallID, out.LeadID, out.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&jobType, "job-type", "initial", "script to run: initial, reschedule or reminder")
	return cmd
}
