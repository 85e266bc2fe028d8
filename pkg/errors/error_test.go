package errors_test

import (
	"errors"
	"fmt"
	"testing"

	. "codejudge/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{LanguageNotSupported, "Programming language not supported"},
		{InvalidParams, "Invalid parameters"},
		{JudgePollTimeout, "Submissions took too long to process"},
		{ErrorCode(99999), "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{Success, 200},
		{InvalidParams, 400},
		{LanguageNotSupported, 400},
		{ValidationFailed, 400},
		{Unauthorized, 401},
		{TokenInvalid, 401},
		{Forbidden, 403},
		{SubmissionNotFound, 404},
		{TestCaseNotFound, 404},
		{SubmitTooFrequently, 429},
		{JudgeTransportError, 502},
		{JudgePollTimeout, 504},
		{InternalServerError, 500},
		{DatabaseError, 500},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(SubmissionNotFound, "submission %s not found", "abc")

	if err.Code != SubmissionNotFound {
		t.Errorf("Code = %v, want %v", err.Code, SubmissionNotFound)
	}
	if err.Error() != "submission abc not found" {
		t.Errorf("Error() = %v", err.Error())
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("connection refused")
	wrappedErr := Wrap(originalErr, DatabaseError)

	if wrappedErr.Code != DatabaseError {
		t.Errorf("Code = %v, want %v", wrappedErr.Code, DatabaseError)
	}
	if wrappedErr.Unwrap() != originalErr {
		t.Error("Unwrap() should return original error")
	}
	if Wrap(nil, DatabaseError) != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "nil error", err: nil, want: Success},
		{name: "custom error", err: New(JudgeSystemError), want: JudgeSystemError},
		{name: "wrapped custom error", err: fmt.Errorf("outer: %w", PollTimeout(3, 1)), want: JudgePollTimeout},
		{name: "standard error", err: errors.New("standard error"), want: InternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := New(LanguageNotSupported)

	if !Is(err, LanguageNotSupported) {
		t.Error("Is() should return true for matching code")
	}
	if Is(err, DatabaseError) {
		t.Error("Is() should return false for non-matching code")
	}
	if Is(nil, LanguageNotSupported) {
		t.Error("Is() should return false for nil error")
	}
}

func TestJudgeErrorKinds(t *testing.T) {
	t.Run("UnsupportedLanguage", func(t *testing.T) {
		err := UnsupportedLanguage("cobol")
		if err.Code != LanguageNotSupported {
			t.Fatalf("unexpected code %d", err.Code)
		}
		if err.Details["language_id"] != "cobol" {
			t.Fatalf("language_id detail not set")
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		err := InvalidInput("test_cases", "at least one test case is required")
		if err.Code != InvalidParams {
			t.Fatalf("unexpected code %d", err.Code)
		}
		if err.Details["field"] != "test_cases" {
			t.Fatalf("field detail not set")
		}
		if err.Error() != "at least one test case is required" {
			t.Fatalf("unexpected message %q", err.Error())
		}
	})

	t.Run("Transport", func(t *testing.T) {
		err := Transport(500, "boom")
		if err.Code != JudgeTransportError {
			t.Fatalf("unexpected code %d", err.Code)
		}
		if err.Details["status_code"] != 500 || err.Details["body"] != "boom" {
			t.Fatalf("unexpected details %v", err.Details)
		}
		if err.Error() != "judge request failed: 500 - boom" {
			t.Fatalf("unexpected message %q", err.Error())
		}
	})

	t.Run("PollTimeout", func(t *testing.T) {
		err := PollTimeout(10, 2)
		if err.Error() != "Submissions took too long to process" {
			t.Fatalf("unexpected message %q", err.Error())
		}
		if err.Details["attempts"] != 10 || err.Details["pending"] != 2 {
			t.Fatalf("unexpected details %v", err.Details)
		}
	})
}
