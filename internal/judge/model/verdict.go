package model

import (
	"fmt"
	"strconv"
)

// TestResult is the reconciled outcome of one test case.
type TestResult struct {
	Index          int     `json:"index"`
	Passed         bool    `json:"passed"`
	StatusID       int     `json:"status_id"`
	Message        string  `json:"message"`
	Stdout         string  `json:"stdout"`
	Stderr         string  `json:"stderr"`
	CompileOutput  string  `json:"compile_output"`
	Time           float64 `json:"time"`   // seconds
	Memory         float64 `json:"memory"` // KB
	ExpectedOutput string  `json:"expected_output"`
	TestCode       string  `json:"test_code"`
}

// Verdict aggregates the results of one judging run.
type Verdict struct {
	Results     []TestResult `json:"results"`
	TotalTests  int          `json:"total_tests"`
	PassedTests int          `json:"passed_tests"`
	FailedTests int          `json:"failed_tests"`
}

// NewVerdict counts passes and failures over results.
func NewVerdict(results []TestResult) *Verdict {
	passed := 0
	for _, r := range results {
		if r.Passed {
			passed++
		}
	}
	return &Verdict{
		Results:     results,
		TotalTests:  len(results),
		PassedTests: passed,
		FailedTests: len(results) - passed,
	}
}

// Accepted reports whether every test passed.
func (v *Verdict) Accepted() bool {
	return v.TotalTests > 0 && v.PassedTests == v.TotalTests
}

// Summary condenses a verdict for persistence and listing.
type Summary struct {
	Status        string  `json:"status"`
	PassedTests   int     `json:"passed_tests"`
	TotalTests    int     `json:"total_tests"`
	ExecutionTime float64 `json:"execution_time"` // average seconds
	MemoryUsed    float64 `json:"memory_used"`    // average KB
}

// Summarize averages time and memory across results, rounded to two decimals.
func Summarize(v *Verdict) Summary {
	s := Summary{
		Status:      fmt.Sprintf("%d/%d tests", v.PassedTests, v.TotalTests),
		PassedTests: v.PassedTests,
		TotalTests:  v.TotalTests,
	}
	if len(v.Results) == 0 {
		return s
	}
	var totalTime, totalMemory float64
	for _, r := range v.Results {
		totalTime += r.Time
		totalMemory += r.Memory
	}
	n := float64(len(v.Results))
	s.ExecutionTime = round2(totalTime / n)
	s.MemoryUsed = round2(totalMemory / n)
	return s
}

func round2(f float64) float64 {
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(f, 'f', 2, 64), 64)
	if err != nil {
		return f
	}
	return rounded
}
