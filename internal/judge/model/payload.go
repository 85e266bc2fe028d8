package model

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// SubmissionPayload is one program submitted to the judge engine.
// Text fields are base64 encoded.
type SubmissionPayload struct {
	SourceCode     string  `json:"source_code"`
	LanguageID     int     `json:"language_id"`
	ExpectedOutput *string `json:"expected_output"`
}

// SubmissionBatch is the encoder output for one judging run.
type SubmissionBatch struct {
	Submissions []SubmissionPayload
	EngineID    int
	TotalTests  int
}

// EngineStatus is the judge's status for a submission.
type EngineStatus struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// ResolvedSubmission is a submission as reported by the judge. Output fields
// are base64 encoded and may be null.
type ResolvedSubmission struct {
	Token         string       `json:"token"`
	Status        EngineStatus `json:"status"`
	Stdout        *string      `json:"stdout"`
	Stderr        *string      `json:"stderr"`
	CompileOutput *string      `json:"compile_output"`
	Message       *string      `json:"message"`
	Time          Metric       `json:"time"`
	Memory        Metric       `json:"memory"`
}

// Metric is a measurement the judge reports either as a number or a numeric string.
type Metric float64

// UnmarshalJSON accepts 0.01, "0.01", and null.
func (m *Metric) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*m = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*m = Metric(f)
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*m = Metric(f)
	return nil
}
