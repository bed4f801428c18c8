package emulator

import (
	"strconv"

	pb "behavioralsignals-sdk-go/proto"
)

// Task is one classification the emulator reports, with the labels it
// cycles through.
type Task struct {
	Name   string
	Labels []Label
}

// Label is a canned prediction.
type Label struct {
	Name      string
	Posterior float64
}

// BehavioralTasks are reported by StreamAudio.
var BehavioralTasks = []Task{
	{Name: "emotion", Labels: []Label{{"neutral", 0.72}, {"happy", 0.64}, {"angry", 0.58}, {"sad", 0.61}}},
	{Name: "strength", Labels: []Label{{"neutral", 0.81}, {"strong", 0.66}, {"weak", 0.55}}},
	{Name: "positivity", Labels: []Label{{"neutral", 0.77}, {"positive", 0.69}, {"negative", 0.6}}},
	{Name: "speaking_rate", Labels: []Label{{"normal", 0.83}, {"fast", 0.57}, {"slow", 0.62}}},
	{Name: "hesitation", Labels: []Label{{"no", 0.9}, {"yes", 0.52}}},
}

// DeepfakeTasks are reported by DeepfakeDetection.
var DeepfakeTasks = []Task{
	{Name: "deepfake", Labels: []Label{{"bonafide", 0.97}, {"bonafide", 0.93}, {"spoofed", 0.71}}},
}

// segmenter turns an audio byte count into timed results. Audio is
// assumed to be 16-bit mono.
type segmenter struct {
	tasks          []Task
	bytesPerSecond int
	segmentBytes   int
	segments       bool
	utterances     bool

	pending  int
	emitted  int
	received int
	nextID   int
}

func newSegmenter(tasks []Task, sampleRate int, segmentSeconds float64, level *pb.Level) *segmenter {
	bps := sampleRate * 2
	s := &segmenter{
		tasks:          tasks,
		bytesPerSecond: bps,
		segmentBytes:   max(2, int(float64(bps)*segmentSeconds)),
		segments:       level == nil || *level == pb.LevelSegment,
		utterances:     level == nil || *level == pb.LevelUtterance,
	}
	return s
}

func (s *segmenter) seconds(bytes int) string {
	return strconv.FormatFloat(float64(bytes)/float64(s.bytesPerSecond), 'f', 2, 64)
}

func (s *segmenter) results(level pb.Level, from, to, idx int) []*pb.InferenceResult {
	out := make([]*pb.InferenceResult, 0, len(s.tasks))
	for _, task := range s.tasks {
		l := task.Labels[idx%len(task.Labels)]
		label := l.Name
		out = append(out, &pb.InferenceResult{
			Id:        strconv.Itoa(s.nextID),
			StartTime: s.seconds(from),
			EndTime:   s.seconds(to),
			Task:      task.Name,
			Prediction: []*pb.Prediction{
				{Label: l.Name, Posterior: strconv.FormatFloat(l.Posterior, 'f', 4, 64)},
			},
			FinalLabel: &label,
			Level:      level,
		})
	}
	s.nextID++
	return out
}

// add accounts for n more bytes and returns results for every segment
// completed by them.
func (s *segmenter) add(n int) []*pb.InferenceResult {
	s.received += n
	s.pending += n
	var out []*pb.InferenceResult
	for s.pending >= s.segmentBytes {
		start := s.emitted
		s.emitted += s.segmentBytes
		s.pending -= s.segmentBytes
		if s.segments {
			out = append(out, s.results(pb.LevelSegment, start, s.emitted, s.emitted/s.segmentBytes-1)...)
		}
	}
	return out
}

// flush returns the trailing partial segment and, when requested, one
// utterance result covering the whole stream.
func (s *segmenter) flush() []*pb.InferenceResult {
	var out []*pb.InferenceResult
	if s.segments && s.pending > 0 {
		start := s.emitted
		s.emitted += s.pending
		out = append(out, s.results(pb.LevelSegment, start, s.emitted, s.emitted/s.segmentBytes)...)
		s.pending = 0
	}
	if s.utterances && s.received > 0 {
		out = append(out, s.results(pb.LevelUtterance, 0, s.received, 0)...)
	}
	return out
}
