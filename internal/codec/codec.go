// Package codec converts typed values to and from the JSON wire payload.
//
// Encoding failures (cycles, channels, funcs, failing marshalers) are
// reported as domain.KindSerialization. Wire bytes are checked for UTF-8
// before decoding; invalid bytes are reported as domain.KindEncoding.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"unicode/utf8"

	"github.com/oriys/lambdakit/internal/domain"
)

// Encode serializes v to compact JSON.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &domain.Error{
			Kind:    domain.KindSerialization,
			Op:      "encode",
			Message: encodeReason(err),
			Err:     err,
		}
	}
	return data, nil
}

// Decode parses a wire payload into R. An empty or whitespace-only payload
// yields the zero value: Event and DryRun invocations return no body.
func Decode[R any](raw []byte) (R, error) {
	var out R
	if !utf8.Valid(raw) {
		return out, &domain.Error{
			Kind:    domain.KindEncoding,
			Op:      "decode",
			Message: "response payload is not valid UTF-8",
		}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &domain.Error{
			Kind:    domain.KindSerialization,
			Op:      "decode",
			Message: err.Error(),
			Err:     err,
		}
	}
	return out, nil
}

// DecodeString is Decode for a string payload.
func DecodeString[R any](raw string) (R, error) {
	return Decode[R]([]byte(raw))
}

func encodeReason(err error) string {
	var (
		valErr  *json.UnsupportedValueError
		typeErr *json.UnsupportedTypeError
		mErr    *json.MarshalerError
	)
	switch {
	case errors.As(err, &valErr):
		return "unsupported value: " + valErr.Str
	case errors.As(err, &typeErr):
		return "unsupported type: " + typeErr.Type.String()
	case errors.As(err, &mErr):
		return "marshaler failed for " + mErr.Type.String()
	default:
		return err.Error()
	}
}
