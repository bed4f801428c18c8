// Package audiofile reads PCM WAV files and splits them into stream chunks.
package audiofile

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"time"
)

var (
	ErrNotWAV            = errors.New("not a RIFF/WAVE file")
	ErrUnsupportedFormat = errors.New("only 16-bit PCM is supported")
	ErrNoDataChunk       = errors.New("WAV file has no data chunk")
)

const formatPCM = 1

// Format describes the audio in a WAV file.
type Format struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
	// DataSize is the length of the PCM payload in bytes.
	DataSize uint32
}

// BytesPerSecond is the PCM byte rate.
func (f Format) BytesPerSecond() int {
	return int(f.SampleRate) * int(f.Channels) * int(f.BitsPerSample) / 8
}

// Duration is the playback length of the payload.
func (f Format) Duration() time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(float64(f.DataSize) / float64(bps) * float64(time.Second))
}

// ChunkBytes is the size of a chunk holding d of audio, rounded down to
// whole frames and never below one frame.
func (f Format) ChunkBytes(d time.Duration) int {
	frame := int(f.Channels) * int(f.BitsPerSample) / 8
	if frame <= 0 {
		frame = 1
	}
	n := int(float64(f.BytesPerSecond()) * d.Seconds())
	n -= n % frame
	if n < frame {
		n = frame
	}
	return n
}

// ReadHeader parses the RIFF header up to the start of the data chunk,
// leaving r positioned at the first PCM byte.
func ReadHeader(r io.Reader) (Format, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return Format{}, fmt.Errorf("read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Format{}, ErrNotWAV
	}

	var f Format
	var haveFmt bool
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Format{}, ErrNoDataChunk
			}
			return Format{}, err
		}
		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return Format{}, fmt.Errorf("fmt chunk too short: %d bytes", size)
			}
			body := make([]byte, size+size%2)
			if _, err := io.ReadFull(r, body); err != nil {
				return Format{}, fmt.Errorf("read fmt chunk: %w", err)
			}
			f.AudioFormat = binary.LittleEndian.Uint16(body[0:2])
			f.Channels = binary.LittleEndian.Uint16(body[2:4])
			f.SampleRate = binary.LittleEndian.Uint32(body[4:8])
			f.BitsPerSample = binary.LittleEndian.Uint16(body[14:16])
			haveFmt = true
		case "data":
			if !haveFmt {
				return Format{}, fmt.Errorf("data chunk before fmt chunk")
			}
			if f.AudioFormat != formatPCM || f.BitsPerSample != 16 {
				return Format{}, fmt.Errorf("%w: format=%d bits=%d", ErrUnsupportedFormat, f.AudioFormat, f.BitsPerSample)
			}
			f.DataSize = size
			return f, nil
		default:
			// LIST, fact and other metadata chunks are skipped.
			if _, err := io.CopyN(io.Discard, r, int64(size+size%2)); err != nil {
				return Format{}, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}
}

// File is an open WAV file positioned at its PCM data.
type File struct {
	Format Format
	f      *os.File
	data   io.Reader
}

// Open opens path and parses its header.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	format, err := ReadHeader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &File{Format: format, f: f, data: io.LimitReader(f, int64(format.DataSize))}, nil
}

// Close closes the underlying file.
func (w *File) Close() error {
	return w.f.Close()
}

// Chunks yields the PCM payload in chunks of chunk duration. A non-zero
// pace sleeps that long between chunks to mimic a live source; ctx stops
// the sequence early.
func (w *File) Chunks(ctx context.Context, chunk, pace time.Duration) iter.Seq2[[]byte, error] {
	return Chunks(ctx, w.data, w.Format.ChunkBytes(chunk), pace)
}

// Chunks splits r into size-byte chunks. See File.Chunks.
func Chunks(ctx context.Context, r io.Reader, size int, pace time.Duration) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		var ticker *time.Ticker
		if pace > 0 {
			ticker = time.NewTicker(pace)
			defer ticker.Stop()
		}
		for first := true; ; first = false {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if ticker != nil && !first {
				select {
				case <-ctx.Done():
					yield(nil, ctx.Err())
					return
				case <-ticker.C:
				}
			}

			buf := make([]byte, size)
			n, err := io.ReadFull(r, buf)
			if n > 0 && !yield(buf[:n], nil) {
				return
			}
			switch {
			case err == nil:
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
				return
			default:
				yield(nil, err)
				return
			}
		}
	}
}
