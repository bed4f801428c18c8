package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"behavioralsignals-sdk-go/internal/audiofile"
	"behavioralsignals-sdk-go/internal/observability/logging"
	"behavioralsignals-sdk-go/pkg/behavioralsignals"
)

func streamCmd(g *globalFlags) *cobra.Command {
	var (
		file     string
		level    string
		chunk    time.Duration
		output   string
		apiName  string
		realtime bool
	)

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Stream a 16-bit PCM WAV file and print results as they arrive",
		Long: `Stream a mono 16-bit PCM WAV file to the streaming API. Each result
message is printed as one JSON line. With --realtime the file is sent at
playback speed, as a live source would be.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := behavioralsignals.ParseLevel(level)
			if err != nil {
				return err
			}
			w, err := audiofile.Open(file)
			if err != nil {
				return err
			}
			defer w.Close()
			if w.Format.Channels != 1 {
				return fmt.Errorf("%s: expected mono audio, got %d channels", file, w.Format.Channels)
			}
			opts, err := behavioralsignals.NewStreamingOptions(int(w.Format.SampleRate), lvl)
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

			var out io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}

			var pace time.Duration
			if realtime {
				pace = chunk
			}
			ctx := cmd.Context()
			stream, err := api.Stream(ctx, w.Chunks(ctx, chunk, pace), opts)
			if err != nil {
				return err
			}
			defer stream.Close()

			logger := logging.WithStream(a.Logger, api.Name(), stream.ID(), opts.SampleRate())
			logger.Info().
				Str("file", file).
				Dur("duration", w.Format.Duration()).
				Str("level", string(opts.Level())).
				Msg("Streaming")

			enc := json.NewEncoder(out)
			var messages, items int
			for res, err := range stream.Results() {
				if err != nil {
					logger.Error().Err(err).Int("messages", messages).Msg("Stream failed")
					return err
				}
				messages++
				items += len(res.Results)
				if err := enc.Encode(res); err != nil {
					return err
				}
				if err := a.Publisher.PublishStreamResult(ctx, api.Name(), stream.ID(), res); err != nil {
					logger.Warn().Err(err).Int64("messageId", res.MessageID).Msg("Failed to publish stream result")
				}
			}

			logger.Info().
				Int("messages", messages).
				Int("results", items).
				Msg("Stream completed")
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "WAV file to stream")
	cmd.Flags().StringVar(&level, "level", string(behavioralsignals.LevelSegment), "segment, utterance or all")
	cmd.Flags().DurationVar(&chunk, "chunk", 250*time.Millisecond, "audio per frame")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write JSON lines to this file instead of stdout")
	cmd.Flags().StringVar(&apiName, "api", "behavioral", "behavioral or deepfakes")
	cmd.Flags().BoolVar(&realtime, "realtime", false, "send at playback speed")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
