// Package model holds the data shared by the judging pipeline and its storage.
package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// TestCase is one snippet executed against the user's solution.
type TestCase struct {
	TestCode       string         `json:"test_code"`
	ExpectedOutput ExpectedOutput `json:"expected_output"`
}

// ExpectedOutput is either a raw value or a value wrapped as {"output": ...}.
// The zero value is an empty raw output.
type ExpectedOutput struct {
	raw     string
	wrapped bool
}

// Raw builds an unwrapped expected output.
func Raw(value string) ExpectedOutput {
	return ExpectedOutput{raw: value}
}

// Wrapped builds an expected output that was carried inside an "output" field.
func Wrapped(output string) ExpectedOutput {
	return ExpectedOutput{raw: output, wrapped: true}
}

// Value returns the normalized expected output text.
func (e ExpectedOutput) Value() string {
	return e.raw
}

// IsWrapped reports whether the value came from an {"output": ...} object.
func (e ExpectedOutput) IsWrapped() bool {
	return e.wrapped
}

// IsEmpty reports whether there is no expected output to check against.
func (e ExpectedOutput) IsEmpty() bool {
	return e.raw == ""
}

// ParseExpectedOutput normalizes a stored expected-output text. A JSON object
// with an "output" member yields that member; anything else is kept verbatim.
// An empty or null "output" means the test expects no output, so the object
// text itself is never used as the expected value.
func ParseExpectedOutput(text string) ExpectedOutput {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") {
		if out, ok := outputMember([]byte(trimmed)); ok {
			return Wrapped(out)
		}
	}
	return Raw(text)
}

// UnmarshalJSON accepts a string, number, bool, null, or an object carrying "output".
func (e *ExpectedOutput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = ExpectedOutput{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = ParseExpectedOutput(s)
		return nil
	case '{':
		if out, ok := outputMember(data); ok {
			*e = Wrapped(out)
			return nil
		}
		// Objects without an output member are compared by their JSON text.
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return err
		}
		*e = Raw(buf.String())
		return nil
	default:
		*e = Raw(scalarText(data))
		return nil
	}
}

// MarshalJSON writes wrapped values back as {"output": ...}.
func (e ExpectedOutput) MarshalJSON() ([]byte, error) {
	if e.wrapped {
		return json.Marshal(struct {
			Output string `json:"output"`
		}{Output: e.raw})
	}
	return json.Marshal(e.raw)
}

func outputMember(data []byte) (string, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", false
	}
	member, ok := obj["output"]
	if !ok {
		return "", false
	}
	member = bytes.TrimSpace(member)
	if len(member) > 0 && member[0] == '"' {
		var s string
		if err := json.Unmarshal(member, &s); err != nil {
			return "", false
		}
		return s, true
	}
	if bytes.Equal(member, []byte("null")) {
		return "", true
	}
	return scalarText(member), true
}

// scalarText keeps numbers and bools as written; other JSON values keep
// their compact text.
func scalarText(data []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err == nil {
		return buf.String()
	}
	return string(data)
}
