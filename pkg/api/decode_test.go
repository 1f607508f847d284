package api

import (
	"testing"

	"github.com/chargee-energy/chargee-developer-playground/pkg/model"
)

func TestDecodeList(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantLen   int
		wantTotal int
		wantErr   bool
	}{
		{name: "bare array", body: `[{"uuid":"a"},{"uuid":"b"}]`, wantLen: 2, wantTotal: 2},
		{name: "envelope with meta", body: `{"meta":{"total":37},"results":[{"uuid":"a"}]}`, wantLen: 1, wantTotal: 37},
		{name: "envelope without meta", body: `{"results":[{"uuid":"a"},{"uuid":"b"}]}`, wantLen: 2, wantTotal: 2},
		{name: "envelope without results", body: `{"meta":{"total":5}}`, wantLen: 0, wantTotal: 5},
		{name: "null results", body: `{"results":null}`, wantLen: 0, wantTotal: 0},
		{name: "empty body", body: ``, wantLen: 0, wantTotal: 0},
		{name: "null body", body: `null`, wantLen: 0, wantTotal: 0},
		{name: "malformed", body: `{"results":`, wantErr: true},
		{name: "wrong results type", body: `{"results":42}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, total, err := decodeList[model.Parent]([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(items) != tt.wantLen || total != tt.wantTotal {
				t.Errorf("got %d items total %d, want %d/%d", len(items), total, tt.wantLen, tt.wantTotal)
			}
		})
	}
}

func TestUpstreamMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"message":"Address not found"}`, "Address not found"},
		{`{"error":"Rate limit exceeded"}`, "Rate limit exceeded"},
		{`{"message":"a","error":"b"}`, "a"},
		{`<html>oops</html>`, ""},
		{``, ""},
	}
	for _, tt := range tests {
		if got := upstreamMessage([]byte(tt.body)); got != tt.want {
			t.Errorf("upstreamMessage(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestAPIError(t *testing.T) {
	err := &APIError{Endpoint: "list_hvacs", StatusCode: 503, Class: ErrorClassServer}
	if got := err.Error(); got != "list_hvacs server error (status 503): Service Unavailable" {
		t.Errorf("Error() = %q", got)
	}
	if StatusCode(err) != 503 {
		t.Errorf("StatusCode() = %d", StatusCode(err))
	}
	if IsNotFound(err) {
		t.Error("503 is not a 404")
	}

	tests := []struct {
		code int
		want ErrorClass
	}{
		{429, ErrorClassRateLimit},
		{404, ErrorClassClient},
		{500, ErrorClassServer},
		{200, ""},
	}
	for _, tt := range tests {
		if got := classifyStatus(tt.code); got != tt.want {
			t.Errorf("classifyStatus(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
