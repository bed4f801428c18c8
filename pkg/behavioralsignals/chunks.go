package behavioralsignals

import (
	"errors"
	"io"
	"iter"
)

// ReaderChunks yields successive chunks of up to size bytes from r. The
// last chunk may be short. Read errors other than EOF are yielded once and
// end the sequence.
func ReaderChunks(r io.Reader, size int) iter.Seq2[[]byte, error] {
	if size <= 0 {
		size = 4096
	}
	return func(yield func([]byte, error) bool) {
		for {
			buf := make([]byte, size)
			n, err := io.ReadFull(r, buf)
			if n > 0 {
				if !yield(buf[:n], nil) {
					return
				}
			}
			switch {
			case err == nil:
				continue
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
				return
			default:
				yield(nil, err)
				return
			}
		}
	}
}

// SliceChunks yields the given chunks in order.
func SliceChunks(chunks ...[]byte) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}
