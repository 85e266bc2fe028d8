// Package encoder turns user code and test cases into judge submissions.
package encoder

import (
	"encoding/base64"
	"strings"

	"codejudge/internal/judge/language"
	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"
)

// Encoder renders and encodes one submission per test case.
type Encoder struct {
	registry *language.Registry
}

// New creates an encoder backed by the given registry.
func New(registry *language.Registry) *Encoder {
	if registry == nil {
		registry = language.Default()
	}
	return &Encoder{registry: registry}
}

// Encode validates input and builds the submission batch in test case order.
func (e *Encoder) Encode(languageID, userCode string, testCases []model.TestCase) (model.SubmissionBatch, error) {
	if strings.TrimSpace(languageID) == "" {
		return model.SubmissionBatch{}, appErr.InvalidInput("language_id", "language is required")
	}
	if strings.TrimSpace(userCode) == "" {
		return model.SubmissionBatch{}, appErr.InvalidInput("source_code", "code is required")
	}
	if len(testCases) == 0 {
		return model.SubmissionBatch{}, appErr.InvalidInput("test_cases", "at least one test case is required")
	}

	desc, err := e.registry.Resolve(languageID)
	if err != nil {
		return model.SubmissionBatch{}, err
	}

	submissions := make([]model.SubmissionPayload, len(testCases))
	for i, tc := range testCases {
		source := language.Render(desc, userCode, tc.TestCode)
		submissions[i] = model.SubmissionPayload{
			SourceCode:     encode(source),
			LanguageID:     desc.EngineID,
			ExpectedOutput: encodeExpected(tc.ExpectedOutput),
		}
	}

	return model.SubmissionBatch{
		Submissions: submissions,
		EngineID:    desc.EngineID,
		TotalTests:  len(testCases),
	}, nil
}

func encodeExpected(out model.ExpectedOutput) *string {
	if out.IsEmpty() {
		return nil
	}
	encoded := encode(out.Value())
	return &encoded
}

func encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}
