package annotations

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/enginuity/internal/common"
)

// DecodeComments parses a comments document. Empty input is an empty list.
func DecodeComments(data []byte) ([]Comment, error) {
	return decode[Comment](data)
}

// DecodeQuestions parses a questions document. Empty input is an empty list.
func DecodeQuestions(data []byte) ([]Question, error) {
	return decode[Question](data)
}

// Encode serialises a document. An empty list encodes as [].
func Encode[T Comment | Question](records []T) ([]byte, error) {
	if len(records) == 0 {
		return []byte("[]"), nil
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return data, nil
}

func decode[T record](data []byte) ([]T, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []T{}, nil
	}
	if data[0] != '[' {
		return nil, fmt.Errorf("%w: document is not a JSON array", common.ErrorSchema)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var out []T
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorSchema, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after document", common.ErrorSchema)
	}

	seen := make(map[string]struct{}, len(out))
	for i, r := range out {
		id := r.recordID()
		if id == "" {
			return nil, fmt.Errorf("%w: record %d has no id", common.ErrorSchema, i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", common.ErrorSchema, id)
		}
		seen[id] = struct{}{}

		if err := r.check(); err != nil {
			return nil, err
		}
	}

	if out == nil {
		out = []T{}
	}
	return out, nil
}
