package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

func newActorsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "actors",
		Short: "List actors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, http.MethodGet, "/api/v1/actors", nil, nil)
		},
	}
}

func newPlanCmd(opts *options) *cobra.Command {
	var date string
	var dates bool
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show an actor's plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			suffix := "/plan"
			if dates {
				suffix = "/plans"
			}
			path, err := opts.actorPath(suffix)
			if err != nil {
				return err
			}
			q := url.Values{}
			if date != "" && !dates {
				q.Set("date", date)
			}
			return opts.call(cmd, http.MethodGet, path, q, nil)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Plan date (YYYY-MM-DD); defaults to the simulation day")
	cmd.Flags().BoolVar(&dates, "dates", false, "List the dates with a stored plan instead")
	return cmd
}

func newReviseCmd(opts *options) *cobra.Command {
	var summary string
	cmd := &cobra.Command{
		Use:   "revise <perception>",
		Short: "Revise an actor's plan from a perception",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := opts.actorPath("/plan/revise")
			if err != nil {
				return err
			}
			body := map[string]string{"perception": args[0]}
			if summary != "" {
				body["summary"] = summary
			}
			return opts.call(cmd, http.MethodPost, path, nil, body)
		},
	}
	cmd.Flags().StringVar(&summary, "summary", "", "Rebuild the plan around this summary without a decision step")
	return cmd
}

func newActCmd(opts *options) *cobra.Command {
	var params string
	var wait bool
	cmd := &cobra.Command{
		Use:   "act <kind>",
		Short: "Submit an action",
		Example: `  dayloopctl -a alice act move --params '{"destination":"cafe"}' --wait
  dayloopctl -a alice act wait --params '{"minutes":15}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := opts.actorPath("/actions")
			if err != nil {
				return err
			}
			body := map[string]any{"kind": args[0], "wait": wait}
			if params != "" {
				if !json.Valid([]byte(params)) {
					return fmt.Errorf("--params is not valid JSON")
				}
				body["params"] = json.RawMessage(params)
			}
			return opts.call(cmd, http.MethodPost, path, nil, body)
		},
	}
	cmd.Flags().StringVarP(&params, "params", "p", "", "Action parameters as a JSON object")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Block until the action settles")
	return cmd
}

func newPerceiveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "perceive <text>",
		Short: "Queue an observation for an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := opts.actorPath("/perceptions")
			if err != nil {
				return err
			}
			return opts.call(cmd, http.MethodPost, path, nil, map[string]string{"text": args[0]})
		},
	}
}

func newSTMCmd(opts *options) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "stm",
		Short: "Show the short-term memory log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := opts.actorPath("/memory/short-term")
			if err != nil {
				return err
			}
			q := url.Values{}
			if kind != "" {
				q.Set("kind", kind)
			}
			return opts.call(cmd, http.MethodGet, path, q, nil)
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Only entries of this kind")
	return cmd
}

func newLTMCmd(opts *options) *cobra.Command {
	var query string
	var limit int
	cmd := &cobra.Command{
		Use:   "ltm",
		Short: "Show or search long-term memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			suffix := "/memory/long-term"
			q := url.Values{}
			if query != "" {
				suffix += "/search"
				q.Set("q", query)
				if limit > 0 {
					q.Set("limit", strconv.Itoa(limit))
				}
			}
			path, err := opts.actorPath(suffix)
			if err != nil {
				return err
			}
			return opts.call(cmd, http.MethodGet, path, q, nil)
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Recall entries matching this text")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum search hits")
	return cmd
}

func newDayEndCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dayend",
		Short: "Run the day-end memory pipeline now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := opts.actorPath("/memory/day-end")
			if err != nil {
				return err
			}
			return opts.call(cmd, http.MethodPost, path, nil, nil)
		},
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show memory status, or server status without --actor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.actor == "" {
				return opts.call(cmd, http.MethodGet, "/status", nil, nil)
			}
			path, err := opts.actorPath("/memory/status")
			if err != nil {
				return err
			}
			return opts.call(cmd, http.MethodGet, path, nil, nil)
		},
	}
}

func newBackupCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Snapshot an actor's memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := opts.actorPath("/memory/backups")
			if err != nil {
				return err
			}
			return opts.call(cmd, http.MethodPost, path, nil, nil)
		},
	}
}

func newBackupsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List memory snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := opts.actorPath("/memory/backups")
			if err != nil {
				return err
			}
			return opts.call(cmd, http.MethodGet, path, nil, nil)
		},
	}
}

func newRestoreCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-id>",
		Short: "Restore memory from a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := opts.actorPath("/memory/backups/" + url.PathEscape(args[0]) + "/restore")
			if err != nil {
				return err
			}
			return opts.call(cmd, http.MethodPost, path, nil, nil)
		},
	}
}
