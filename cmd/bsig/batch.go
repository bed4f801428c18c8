package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"behavioralsignals-sdk-go/internal/app"
	"behavioralsignals-sdk-go/internal/observability/logging"
	"behavioralsignals-sdk-go/pkg/behavioralsignals"
)

func batchCmd(g *globalFlags) *cobra.Command {
	var (
		file       string
		output     string
		apiName    string
		name       string
		embeddings bool
		meta       string
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Submit a recording, wait for it and print its results",
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

			poll := a.PollOptions()
			poll.OnStatus = func(p behavioralsignals.Process) {
				plog := logging.WithProcess(a.Logger, api.Name(), p.ID)
				plog.Info().
					Str("status", p.Status.String()).
					Msg("Process status")
			}
			res, proc, err := api.Analyze(cmd.Context(), file, behavioralsignals.SubmitOptions{
				Name:              name,
				IncludeEmbeddings: embeddings,
				Metadata:          meta,
			}, poll)
			if err != nil {
				return err
			}
			if !proc.IsCompleted() {
				return terminalError(proc)
			}
			if err := a.Publisher.PublishBatchResult(cmd.Context(), api.Name(), *proc, res); err != nil {
				a.Logger.Warn().Err(err).Int64("pid", proc.ID).Msg("Failed to publish batch result")
			}
			return writeJSON(cmd.OutOrStdout(), output, res)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "audio file to submit")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write results to this file instead of stdout")
	cmd.Flags().StringVar(&apiName, "api", "behavioral", "behavioral or deepfakes")
	cmd.Flags().StringVar(&name, "name", "", "process name (default: file name)")
	cmd.Flags().BoolVar(&embeddings, "embeddings", false, "include speaker embeddings")
	cmd.Flags().StringVar(&meta, "meta", "", "JSON object stored with the process")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// terminalError reports a process that finished without results.
func terminalError(p *behavioralsignals.Process) error {
	if p.StatusMessage == "" {
		return fmt.Errorf("process %d ended %s", p.ID, p.Status)
	}
	return fmt.Errorf("process %d ended %s: %s", p.ID, p.Status, p.StatusMessage)
}

// bulkOutcome is the result of one file in a bulk run.
type bulkOutcome struct {
	File   string
	PID    int64
	Status string
	Output string
	Err    error
}

func bulkCmd(g *globalFlags) *cobra.Command {
	var (
		concurrency int
		rps         float64
		outputDir   string
		apiName     string
		embeddings  bool
	)

	cmd := &cobra.Command{
		Use:   "bulk FILE...",
		Short: "Submit many recordings concurrently and collect their results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if concurrency < 1 {
				return fmt.Errorf("--concurrency must be at least 1")
			}
			if rps <= 0 {
				return fmt.Errorf("--rps must be positive")
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

			outcomes := runBulk(cmd.Context(), a, api, args, bulkSettings{
				concurrency: concurrency,
				limiter:     rate.NewLimiter(rate.Limit(rps), 1),
				outputDir:   outputDir,
				embeddings:  embeddings,
			})

			failed := 0
			out := cmd.OutOrStdout()
			for _, o := range outcomes {
				if o.Err != nil {
					failed++
					fmt.Fprintf(out, "%s\t%d\tERROR\t%v\n", o.File, o.PID, o.Err)
					continue
				}
				fmt.Fprintf(out, "%s\t%d\t%s\t%s\n", o.File, o.PID, o.Status, o.Output)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(outcomes))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "uploads in flight at once")
	cmd.Flags().Float64Var(&rps, "rps", 2, "maximum API requests per second across all files")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "d", "results", "directory for per-file result JSON")
	cmd.Flags().StringVar(&apiName, "api", "behavioral", "behavioral or deepfakes")
	cmd.Flags().BoolVar(&embeddings, "embeddings", false, "include speaker embeddings")

	return cmd
}

type bulkSettings struct {
	concurrency int
	limiter     *rate.Limiter
	outputDir   string
	embeddings  bool
}

// runBulk submits every file, polls each process to a terminal status
// and writes completed results to outputDir. Per-file failures are
// reported in the outcome and do not stop the others.
func runBulk(ctx context.Context, a *app.Application, api *behavioralsignals.API, files []string, s bulkSettings) []bulkOutcome {
	outcomes := make([]bulkOutcome, len(files))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.concurrency)
	for i, file := range files {
		eg.Go(func() error {
			outcomes[i] = processBulkFile(ctx, a, api, file, s)
			return ctx.Err()
		})
	}
	if err := eg.Wait(); err != nil {
		a.Logger.Warn().Err(err).Msg("Bulk run interrupted")
	}
	return outcomes
}

func processBulkFile(ctx context.Context, a *app.Application, api *behavioralsignals.API, file string, s bulkSettings) bulkOutcome {
	o := bulkOutcome{File: file}

	if err := s.limiter.Wait(ctx); err != nil {
		o.Err = err
		return o
	}
	proc, err := api.SubmitFile(ctx, file, behavioralsignals.SubmitOptions{IncludeEmbeddings: s.embeddings})
	if err != nil {
		o.Err = err
		return o
	}
	o.PID = proc.ID
	logger := logging.WithProcess(a.Logger, api.Name(), proc.ID)
	logger.Info().Str("file", file).Msg("Submitted")

	poll := a.PollOptions()
	poll.BeforePoll = s.limiter.Wait
	if proc, err = api.WaitFrom(ctx, proc, poll); err != nil {
		o.Err = err
		return o
	}
	o.Status = proc.Status.String()
	logger.Info().Str("status", o.Status).Msg("Process finished")
	if !proc.IsCompleted() {
		o.Output = proc.StatusMessage
		return o
	}

	if err := s.limiter.Wait(ctx); err != nil {
		o.Err = err
		return o
	}
	res, err := api.FetchResult(ctx, proc)
	if err != nil {
		o.Err = err
		return o
	}
	if err := a.Publisher.PublishBatchResult(ctx, api.Name(), *proc, res); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish batch result")
	}

	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	o.Output = filepath.Join(s.outputDir, fmt.Sprintf("%s.%d.json", base, proc.ID))
	if err := writeJSON(os.Stdout, o.Output, res); err != nil {
		o.Err = err
	}
	return o
}
