// Package behavioralsignals is a client for the Behavioral Signals voice
// analysis API.
//
// A Client authenticates once at construction and exposes two APIs with
// the same surface: Behavioral (emotion, intent, speaker traits) and
// Deepfakes (synthetic speech detection).
//
// Batch analysis uploads a recording, polls until the service finishes
// and then fetches the results:
//
//	client, err := behavioralsignals.New(ctx, os.Getenv("USER_ID"), os.Getenv("API_KEY"))
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	proc, err := client.Behavioral.SubmitFile(ctx, "call.wav", behavioralsignals.SubmitOptions{})
//	if err != nil {
//		return err
//	}
//	proc, err = client.Behavioral.Wait(ctx, proc.ID, behavioralsignals.PollOptions{})
//	if err != nil {
//		return err
//	}
//	results, err := client.Behavioral.FetchResult(ctx, proc)
//
// Streaming analysis sends raw PCM chunks over a bidirectional gRPC
// stream and yields results as they become ready:
//
//	stream, err := client.Behavioral.Stream(ctx,
//		behavioralsignals.ReaderChunks(pcm, 8000),
//		behavioralsignals.DefaultStreamingOptions())
//	if err != nil {
//		return err
//	}
//	defer stream.Close()
//
//	for res, err := range stream.Results() {
//		if err != nil {
//			return err
//		}
//		fmt.Println(res.MessageID, len(res.Results))
//	}
//
// Errors are typed: ValidationError for bad input caught locally,
// AuthenticationError, APIError for structured service errors,
// TransportError, DecodingError, InvalidStateError and, for streams,
// SourceError.
package behavioralsignals
