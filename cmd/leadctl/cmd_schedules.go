package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type jobSchedule struct {
	JobType      string   `json:"jobType"`
	Enabled      bool     `json:"enabled"`
	StartTime    *string  `json:"startTime"`
	EndTime      *string  `json:"endTime"`
	SelectedDays []string `json:"selectedDays"`
	CallLimit    int      `json:"callLimit"`
}

type jobScheduleInput struct {
	Enabled      bool     `json:"enabled"`
	StartTime    string   `json:"startTime,omitempty"`
	EndTime      string   `json:"endTime,omitempty"`
	SelectedDays []string `json:"selectedDays,omitempty"`
	CallLimit    int      `json:"callLimit"`
}

func newSchedulesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedules",
		Aliases: []string{"schedule"},
		Short:   "Inspect and edit per-job-type schedules",
	}
	cmd.AddCommand(newSchedulesListCmd(opts), newSchedulesGetCmd(opts), newSchedulesSetCmd(opts))
	return cmd
}

func newSchedulesListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all job schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out []jobSchedule
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/api/v1/job-schedules", nil, &out); err != nil {
				return fmt.Errorf("schedules list: %w", err)
			}
			printSchedules(cmd.OutOrStdout(), out...)
			return nil
		},
	}
}

func newSchedulesGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-type>",
		Short: "Show one job schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out jobSchedule
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/api/v1/job-schedules/"+args[0], nil, &out); err != nil {
				return fmt.Errorf("schedules get: %w", err)
			}
			printSchedules(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newSchedulesSetCmd(opts *rootOptions) *cobra.Command {
	var (
		in   jobScheduleInput
		days string
	)
	cmd := &cobra.Command{
		Use:   "set <job-type>",
		Short: "Replace a job schedule and re-arm its timer",
		Example: "  leadctl schedules set reschedule --enabled --start 09:30 --days mon,wed,fri --limit 50\n" +
			"  leadctl schedules set initial --enabled --start 09:00 --end 17:00",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if days != "" {
				for _, d := range strings.Split(days, ",") {
					if d = strings.TrimSpace(d); d != "" {
						in.SelectedDays = append(in.SelectedDays, d)
					}
				}
			}
			var out jobSchedule
			if err := opts.client().do(cmd.Context(), http.MethodPut, "/api/v1/job-schedules/"+args[0], in, &out); err != nil {
				return fmt.Errorf("schedules set: %w", err)
			}
			printSchedules(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&in.Enabled, "enabled", false, "enable the schedule")
	cmd.Flags().StringVar(&in.StartTime, "start", "", "start time, HH:MM")
	cmd.Flags().StringVar(&in.EndTime, "end", "", "end time, HH:MM")
	cmd.Flags().StringVar(&days, "days", "", "comma separated weekdays, empty for every day")
	cmd.Flags().IntVar(&in.CallLimit, "limit", 0, "max calls per batch, 0 for the default")
	return cmd
}

func printSchedules(w io.Writer, schedules ...jobSchedule) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB TYPE\tENABLED\tSTART\tEND\tDAYS\tLIMIT")
	for _, s := range schedules {
		days := "every day"
		if len(s.SelectedDays) > 0 {
			days = strings.Join(s.SelectedDays, ",")
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\t%d\n", s.JobType, s.Enabled, orDash(s.StartTime), orDash(s.EndTime), days, s.CallLimit)
	}
	_ = tw.Flush()
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
