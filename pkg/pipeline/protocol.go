package pipeline

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Terminal line prefixes of a worker response.
const (
	ResultPrefix = "RESULT="
	ErrorPrefix  = "ERROR="
)

// FailureKind classifies a response that carried no markup.
type FailureKind string

const (
	// NoWorkerOutput: the worker wrote nothing at all.
	NoWorkerOutput FailureKind = "no_worker_output"

	// NonStringResult: RESULT= carried a JSON value that is not a string.
	NonStringResult FailureKind = "non_string_result"

	// RenderFailure: the worker reported an error with ERROR=.
	RenderFailure FailureKind = "render_failure"

	// ProtocolViolation: the last line is not a terminal line, or its JSON
	// does not parse.
	ProtocolViolation FailureKind = "protocol_violation"
)

// Failure messages. Tooling may match on these.
const (
	MsgNoContent = "No content received from the worker process"
	MsgNotString = "Result provided by the worker process was not a string"
	MsgNoResult  = "No result provided by the worker process"
)

// Failure is a diagnostic built from a worker response.
type Failure struct {
	Kind    FailureKind
	Message string
	Log     []string
}

// Logs returns the transcript joined with newlines.
func (f *Failure) Logs() string { return strings.Join(f.Log, "\n") }

// Outcome is either markup (Failure == nil) or a Failure.
type Outcome struct {
	HTML    string
	Failure *Failure
}

// OK reports whether the outcome carries markup.
func (o Outcome) OK() bool { return o.Failure == nil }

// ParseResponse interprets the lines of one worker response. Only the last
// line decides the outcome; every earlier line is log output.
func ParseResponse(lines []string) Outcome {
	if len(lines) == 0 {
		return fail(NoWorkerOutput, MsgNoContent, nil)
	}
	last := lines[len(lines)-1]

	if raw, ok := strings.CutPrefix(last, ResultPrefix); ok {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return fail(ProtocolViolation, "Invalid RESULT payload: "+err.Error(), lines)
		}
		s, ok := v.(string)
		if !ok {
			return fail(NonStringResult, MsgNotString, lines)
		}
		return Outcome{HTML: s}
	}

	if raw, ok := strings.CutPrefix(last, ErrorPrefix); ok {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return fail(ProtocolViolation, "Invalid ERROR payload: "+err.Error(), lines)
		}
		log := lines[:len(lines)-1]
		if s, ok := v.(string); ok {
			return fail(RenderFailure, s, log)
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(raw)); err != nil {
			return fail(RenderFailure, strings.TrimSpace(raw), log)
		}
		return fail(RenderFailure, buf.String(), log)
	}

	return fail(ProtocolViolation, MsgNoResult, lines)
}

func fail(kind FailureKind, msg string, log []string) Outcome {
	if log == nil {
		log = []string{}
	}
	return Outcome{Failure: &Failure{Kind: kind, Message: msg, Log: log}}
}
