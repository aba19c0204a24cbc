// Package voice post-processes dictated text into form field values.
package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type Field string

const (
	Amount Field = "amount"
	Remark Field = "remark"
)

var (
	ErrUnsupported  = errors.New("voice input is not supported")
	ErrUnknownField = errors.New("unknown dictation field")
)

// Transcriber turns one utterance into text.
type Transcriber interface {
	Transcribe(ctx context.Context) (string, error)
}

// ParseField accepts a field name in any case.
func ParseField(s string) (Field, error) {
	switch Field(strings.ToLower(strings.TrimSpace(s))) {
	case Amount:
		return Amount, nil
	case Remark:
		return Remark, nil
	}
	return "", ErrUnknownField
}

// Clean maps a transcript to a field value: digits and dots only for the
// amount, the trimmed transcript for the remark.
func Clean(field Field, transcript string) (string, error) {
	switch field {
	case Amount:
		var b strings.Builder
		for _, r := range transcript {
			if (r >= '0' && r <= '9') || r == '.' {
				b.WriteRune(r)
			}
		}
		return b.String(), nil
	case Remark:
		return strings.TrimSpace(transcript), nil
	}
	return "", ErrUnknownField
}

// Fill dictates into field. On any failure the current value is returned
// together with the error so the caller can leave the form as it was.
func Fill(ctx context.Context, t Transcriber, field Field, current string) (string, error) {
	if t == nil {
		return current, ErrUnsupported
	}
	text, err := t.Transcribe(ctx)
	if err != nil {
		return current, fmt.Errorf("voice input error: %w", err)
	}
	cleaned, err := Clean(field, text)
	if err != nil {
		return current, err
	}
	return cleaned, nil
}
