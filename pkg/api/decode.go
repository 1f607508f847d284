package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// listEnvelope is the wrapped form of a list response.
type listEnvelope struct {
	Meta struct {
		Total int `json:"total"`
	} `json:"meta"`
	Results json.RawMessage `json:"results"`
}

// decodeList accepts either a bare JSON array or {meta:{total}, results:[...]}
// and returns the items with the reported total. A bare array reports its
// length as total, and so does an envelope without meta.
func decodeList[T any](body []byte) ([]T, int, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []T{}, 0, nil
	}

	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, 0, fmt.Errorf("decode list: %w", err)
		}
		return items, len(items), nil
	}

	var env listEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, 0, fmt.Errorf("decode list envelope: %w", err)
	}

	items := []T{}
	if len(env.Results) > 0 && !bytes.Equal(bytes.TrimSpace(env.Results), []byte("null")) {
		if err := json.Unmarshal(env.Results, &items); err != nil {
			return nil, 0, fmt.Errorf("decode list results: %w", err)
		}
	}

	total := env.Meta.Total
	if total < len(items) {
		total = len(items)
	}
	return items, total, nil
}

// errorBody is the error payload of the remote service.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// upstreamMessage extracts the explanation from an error body, if any.
func upstreamMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	if eb.Message != "" {
		return eb.Message
	}
	return eb.Error
}
