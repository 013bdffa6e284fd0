package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  Outcome
	}{
		{
			name:  "success after log lines",
			lines: []string{"debug: starting", `RESULT="<p>hi</p>"`},
			want:  Outcome{HTML: "<p>hi</p>"},
		},
		{
			name:  "non-string result",
			lines: []string{"RESULT=42"},
			want:  Outcome{Failure: &Failure{Kind: NonStringResult, Message: MsgNotString, Log: []string{"RESULT=42"}}},
		},
		{
			name:  "string error",
			lines: []string{"stack trace line 1", `ERROR="boom"`},
			want:  Outcome{Failure: &Failure{Kind: RenderFailure, Message: "boom", Log: []string{"stack trace line 1"}}},
		},
		{
			name:  "structured error",
			lines: []string{"a", "b", `ERROR={ "code": 500,  "detail": ["x"] }`},
			want: Outcome{Failure: &Failure{
				Kind:    RenderFailure,
				Message: `{"code":500,"detail":["x"]}`,
				Log:     []string{"a", "b"},
			}},
		},
		{
			name:  "error alone",
			lines: []string{`ERROR="only"`},
			want:  Outcome{Failure: &Failure{Kind: RenderFailure, Message: "only", Log: []string{}}},
		},
		{
			name:  "no terminal line",
			lines: []string{"nothing useful"},
			want:  Outcome{Failure: &Failure{Kind: ProtocolViolation, Message: MsgNoResult, Log: []string{"nothing useful"}}},
		},
		{
			name:  "terminal prefix not on last line",
			lines: []string{`RESULT="early"`, "trailing log"},
			want:  Outcome{Failure: &Failure{Kind: ProtocolViolation, Message: MsgNoResult, Log: []string{`RESULT="early"`, "trailing log"}}},
		},
		{
			name:  "no output",
			lines: nil,
			want:  Outcome{Failure: &Failure{Kind: NoWorkerOutput, Message: MsgNoContent, Log: []string{}}},
		},
		{
			name:  "empty output",
			lines: []string{},
			want:  Outcome{Failure: &Failure{Kind: NoWorkerOutput, Message: MsgNoContent, Log: []string{}}},
		},
		{
			name:  "null result is not a string",
			lines: []string{"RESULT=null"},
			want:  Outcome{Failure: &Failure{Kind: NonStringResult, Message: MsgNotString, Log: []string{"RESULT=null"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseResponse(tt.lines)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseResponse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseResponseInvalidJSON(t *testing.T) {
	for _, line := range []string{`RESULT=<p>`, `ERROR={oops`} {
		got := ParseResponse([]string{"log", line})
		if got.OK() {
			t.Fatalf("%q: expected failure", line)
		}
		if got.Failure.Kind != ProtocolViolation {
			t.Errorf("%q: kind = %s, want %s", line, got.Failure.Kind, ProtocolViolation)
		}
		if diff := cmp.Diff([]string{"log", line}, got.Failure.Log); diff != "" {
			t.Errorf("%q: log mismatch (-want +got):\n%s", line, diff)
		}
	}
}

func TestParseResponseRoundTrip(t *testing.T) {
	originals := []string{
		`<div class="hero">"quoted"</div>`,
		"line one\nline two\r\n\ttabbed",
		`back\slash and </script> and unicode é ✓`,
		"",
	}
	for _, want := range originals {
		payload, err := json.Marshal(want)
		if err != nil {
			t.Fatal(err)
		}
		got := ParseResponse([]string{"noise", ResultPrefix + string(payload)})
		if !got.OK() {
			t.Fatalf("round trip of %q failed: %+v", want, got.Failure)
		}
		if got.HTML != want {
			t.Errorf("round trip = %q, want %q", got.HTML, want)
		}
	}
}

func TestFailureLogs(t *testing.T) {
	f := &Failure{Log: []string{"a", "b"}}
	if got := f.Logs(); got != "a\nb" {
		t.Errorf("Logs() = %q", got)
	}
	if got := (&Failure{}).Logs(); got != "" {
		t.Errorf("empty Logs() = %q", got)
	}
}
