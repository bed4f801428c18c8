package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"behavioralsignals-sdk-go/pkg/behavioralsignals"
)

func processesCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "processes",
		Short: "Inspect submitted processes",
	}

	cmd.AddCommand(processesListCmd(g))
	cmd.AddCommand(processesGetCmd(g))

	return cmd
}

func processesListCmd(g *globalFlags) *cobra.Command {
	var (
		opts    behavioralsignals.ListOptions
		apiName string
		status  string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.start(cmd)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			api, err := a.API(apiName)
			if err != nil {
				return err
			}
			list, err := api.ListProcesses(cmd.Context(), opts)
			if err != nil {
				return err
			}

			switch status {
			case "":
			case "completed":
				list.Processes = list.Completed()
			case "processing":
				list.Processes = list.Processing()
			case "failed":
				list.Processes = list.Failed()
			default:
				return fmt.Errorf("unknown --status %q (want completed, processing or failed)", status)
			}
			return writeJSON(cmd.OutOrStdout(), "", list)
		},
	}

	cmd.Flags().IntVar(&opts.Page, "page", 0, "page number, from 0")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 0, "processes per page, up to 1000")
	cmd.Flags().StringVar(&opts.Sort, "sort", "", "sort order, e.g. asc or desc")
	cmd.Flags().StringVar(&opts.StartDate, "start-date", "", "only processes created on or after this date")
	cmd.Flags().StringVar(&opts.EndDate, "end-date", "", "only processes created on or before this date")
	cmd.Flags().StringVar(&status, "status", "", "filter the page: completed, processing or failed")
	cmd.Flags().StringVar(&apiName, "api", "behavioral", "behavioral or deepfakes")

	return cmd
}

func processesGetCmd(g *globalFlags) *cobra.Command {
	var apiName string

	cmd := &cobra.Command{
		Use:   "get PID",
		Short: "Show one process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePID(args[0])
			if err != nil {
				return err
			}
			a, err := g.start(cmd)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			api, err := a.API(apiName)
			if err != nil {
				return err
			}
			proc, err := api.GetProcess(cmd.Context(), pid)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), "", proc)
		},
	}

	cmd.Flags().StringVar(&apiName, "api", "behavioral", "behavioral or deepfakes")

	return cmd
}

func resultsCmd(g *globalFlags) *cobra.Command {
	var (
		apiName string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "results PID",
		Short: "Fetch the results of a completed process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePID(args[0])
			if err != nil {
				return err
			}
			a, err := g.start(cmd)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			api, err := a.API(apiName)
			if err != nil {
				return err
			}
			res, err := api.FetchResultByID(cmd.Context(), pid)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), output, res)
		},
	}

	cmd.Flags().StringVar(&apiName, "api", "behavioral", "behavioral or deepfakes")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write results to this file instead of stdout")

	return cmd
}

func parsePID(s string) (int64, error) {
	pid, err := strconv.ParseInt(s, 10, 64)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid process id %q", s)
	}
	return pid, nil
}
