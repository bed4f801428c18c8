// Package schema validates caller-supplied payloads before they are sent.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidJSON is returned for metadata that is not valid JSON text.
var ErrInvalidJSON = errors.New("metadata is not valid JSON")

type Validator struct {
	maxBytes int
}

// New returns a validator that rejects metadata larger than maxBytes.
// Zero disables the size check.
func New(maxBytes int) *Validator {
	return &Validator{maxBytes: maxBytes}
}

// ValidateMetadata checks that meta is a single well-formed JSON value.
// The empty string means "no metadata" and is accepted.
func (v *Validator) ValidateMetadata(meta string) error {
	if meta == "" {
		return nil
	}
	if v.maxBytes > 0 && len(meta) > v.maxBytes {
		return fmt.Errorf("metadata is %d bytes, limit is %d", len(meta), v.maxBytes)
	}
	if !json.Valid([]byte(meta)) {
		return ErrInvalidJSON
	}
	return nil
}

// CompactMetadata validates meta and strips insignificant whitespace.
func (v *Validator) CompactMetadata(meta string) (string, error) {
	if err := v.ValidateMetadata(meta); err != nil {
		return "", err
	}
	if meta == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(meta)); err != nil {
		return "", ErrInvalidJSON
	}
	return buf.String(), nil
}
