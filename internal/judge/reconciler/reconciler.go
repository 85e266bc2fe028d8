// Package reconciler turns resolved judge submissions into per-test results.
package reconciler

import (
	"encoding/base64"
	"fmt"
	"strings"

	"codejudge/internal/judge/model"
)

// Result messages.
const (
	MessagePassed            = "Passed"
	MessageWrongAnswer       = "Wrong Answer"
	MessageCompilationError  = "Compilation Error"
	MessageRuntimeError      = "Runtime Error"
	MessageTimeLimitExceeded = "Time Limit Exceeded"
)

// Reconcile pairs resolved[i] with testCases[i]. The slices must have equal length.
func Reconcile(resolved []model.ResolvedSubmission, testCases []model.TestCase) []model.TestResult {
	if len(resolved) != len(testCases) {
		panic(fmt.Sprintf("reconciler: %d results for %d test cases", len(resolved), len(testCases)))
	}

	results := make([]model.TestResult, len(resolved))
	for i, sub := range resolved {
		tc := testCases[i]
		stdout := decode(sub.Stdout)
		expected := tc.ExpectedOutput.Value()

		passed, message := classify(sub.Status, stdout, expected)
		results[i] = model.TestResult{
			Index:          i + 1,
			Passed:         passed,
			StatusID:       sub.Status.ID,
			Message:        message,
			Stdout:         stdout,
			Stderr:         decode(sub.Stderr),
			CompileOutput:  decode(sub.CompileOutput),
			Time:           float64(sub.Time),
			Memory:         float64(sub.Memory),
			ExpectedOutput: expected,
			TestCode:       tc.TestCode,
		}
	}
	return results
}

func classify(status model.EngineStatus, stdout, expected string) (bool, string) {
	kind, known := outcomes[status.ID]
	if !known {
		if status.Description != "" {
			return false, status.Description
		}
		return false, Label(status.ID)
	}
	if kind == outcomeCompare {
		if Match(stdout, expected) {
			return true, MessagePassed
		}
		return false, MessageWrongAnswer
	}
	return false, outcomeMessages[kind]
}

// Match compares outputs ignoring surrounding whitespace and letter case.
func Match(actual, expected string) bool {
	return normalize(actual) == normalize(expected)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// decode returns "" for null or malformed input.
func decode(field *string) string {
	if field == nil || *field == "" {
		return ""
	}
	// Line breaks from wrapped encoders are skipped by the decoder.
	data, err := base64.StdEncoding.DecodeString(*field)
	if err != nil {
		return ""
	}
	return string(data)
}
