package encoder_test

import (
	"encoding/base64"
	"strings"
	"testing"

	"codejudge/internal/judge/encoder"
	"codejudge/internal/judge/language"
	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"
)

func decode(t *testing.T, s string) string {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return string(data)
}

func TestEncodePythonTwoCases(t *testing.T) {
	enc := encoder.New(language.Default())
	cases := []model.TestCase{
		{TestCode: "print(sol.add(1,2))", ExpectedOutput: model.Raw("3")},
		{TestCode: "print(sol.add(2,2))", ExpectedOutput: model.Wrapped("4")},
	}

	batch, err := enc.Encode("python", "class Solution:\n    def add(self, a, b): return a + b", cases)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if batch.EngineID != 71 || batch.TotalTests != 2 || len(batch.Submissions) != 2 {
		t.Fatalf("unexpected batch %+v", batch)
	}
	for i, sub := range batch.Submissions {
		if sub.LanguageID != 71 {
			t.Fatalf("submission %d: expected language 71, got %d", i, sub.LanguageID)
		}
		source := decode(t, sub.SourceCode)
		if !strings.Contains(source, cases[i].TestCode) {
			t.Fatalf("submission %d: test code missing from source", i)
		}
		if !strings.HasPrefix(source, "## Imports\nfrom typing import *") {
			t.Fatalf("submission %d: unexpected template", i)
		}
	}
	if got := decode(t, *batch.Submissions[0].ExpectedOutput); got != "3" {
		t.Fatalf("expected 3, got %q", got)
	}
	if got := decode(t, *batch.Submissions[1].ExpectedOutput); got != "4" {
		t.Fatalf("expected 4, got %q", got)
	}
}

func TestEncodeEmptyExpectedIsNull(t *testing.T) {
	enc := encoder.New(nil)
	batch, err := enc.Encode("JavaScript", "class Solution {}", []model.TestCase{
		{TestCode: "console.log(1)"},
		{TestCode: "console.log()", ExpectedOutput: model.ParseExpectedOutput(`{"output": ""}`)},
	})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	for i, sub := range batch.Submissions {
		if sub.ExpectedOutput != nil {
			t.Fatalf("submission %d: expected null expected output, got %q", i, *sub.ExpectedOutput)
		}
	}
	if batch.EngineID != 63 {
		t.Fatalf("expected engine 63, got %d", batch.EngineID)
	}
}

func TestEncodeValidation(t *testing.T) {
	enc := encoder.New(language.Default())
	one := []model.TestCase{{TestCode: "x"}}
	tests := []struct {
		name      string
		language  string
		code      string
		cases     []model.TestCase
		wantCode  appErr.ErrorCode
		wantField string
	}{
		{name: "missing language", language: "", code: "x", cases: one, wantCode: appErr.InvalidParams, wantField: "language_id"},
		{name: "blank code", language: "python", code: "   ", cases: one, wantCode: appErr.InvalidParams, wantField: "source_code"},
		{name: "no cases", language: "python", code: "x", cases: nil, wantCode: appErr.InvalidParams, wantField: "test_cases"},
		{name: "unsupported", language: "cobol", code: "x", cases: one, wantCode: appErr.LanguageNotSupported},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := enc.Encode(tt.language, tt.code, tt.cases)
			if !appErr.Is(err, tt.wantCode) {
				t.Fatalf("expected code %d, got %v", tt.wantCode, err)
			}
			if tt.wantField != "" && appErr.GetError(err).Details["field"] != tt.wantField {
				t.Fatalf("expected field %s, got %v", tt.wantField, appErr.GetError(err).Details)
			}
		})
	}
}

func TestEncodeDeterministic(t *testing.T) {
	enc := encoder.New(language.Default())
	cases := []model.TestCase{{TestCode: "fmt.Println(1)", ExpectedOutput: model.Raw("1")}}
	a, err := enc.Encode("go", "type Solution struct{}", cases)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	b, _ := enc.Encode("go", "type Solution struct{}", cases)
	if a.Submissions[0].SourceCode != b.Submissions[0].SourceCode {
		t.Fatalf("expected identical source encodings")
	}
}
