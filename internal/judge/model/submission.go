package model

import "time"

// JudgeStatus is the lifecycle state of a stored submission.
type JudgeStatus string

const (
	StatusJudging  JudgeStatus = "Judging"
	StatusFinished JudgeStatus = "Finished"
	StatusFailed   JudgeStatus = "Failed"
)

// Submission is a persisted judging run for a problem.
type Submission struct {
	SubmissionID string       `json:"submission_id"`
	UserID       int64        `json:"user_id"`
	ProblemID    int64        `json:"problem_id"`
	LanguageID   string       `json:"language_id"`
	Code         string       `json:"code,omitempty"`
	Summary      Summary      `json:"summary"`
	Results      []TestResult `json:"results,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// SubmissionStatus is the cached view of a submission.
type SubmissionStatus struct {
	SubmissionID string      `json:"submission_id"`
	UserID       int64       `json:"user_id"`
	Status       JudgeStatus `json:"status"`
	Summary      Summary     `json:"summary"`
	ErrorCode    int         `json:"error_code,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	UpdatedAt    int64       `json:"updated_at"`
}

// VerdictEvent is published once a submission reaches a final state.
type VerdictEvent struct {
	SubmissionID string      `json:"submission_id"`
	UserID       int64       `json:"user_id"`
	ProblemID    int64       `json:"problem_id"`
	LanguageID   string      `json:"language_id"`
	Status       JudgeStatus `json:"status"`
	Summary      Summary     `json:"summary"`
	CreatedAt    int64       `json:"created_at"`
}

// JudgeTask is the queued form of an asynchronous submission.
type JudgeTask struct {
	SubmissionID string `json:"submission_id"`
	UserID       int64  `json:"user_id"`
	ProblemID    int64  `json:"problem_id"`
	LanguageID   string `json:"language_id"`
	SourceCode   string `json:"source_code"`
	CreatedAt    int64  `json:"created_at"`
}
