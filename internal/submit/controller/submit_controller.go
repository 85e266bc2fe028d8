package controller

import (
	"context"
	"strconv"
	"strings"

	"codejudge/internal/common/http/middleware"
	"codejudge/internal/judge/model"
	"codejudge/internal/submit/service"
	"codejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// Submitter is the part of the submit service the HTTP layer uses.
type Submitter interface {
	Submit(ctx context.Context, input service.SubmitInput) (*model.Submission, error)
	Enqueue(ctx context.Context, input service.SubmitInput) (model.SubmissionStatus, error)
	Get(ctx context.Context, userID int64, submissionID string) (*service.SubmissionDetail, error)
	ListByProblem(ctx context.Context, userID, problemID int64, languageID string) ([]model.Submission, error)
}

// SubmitController handles submission HTTP endpoints.
type SubmitController struct {
	submitService Submitter
}

// NewSubmitController creates a new SubmitController.
func NewSubmitController(submitService Submitter) *SubmitController {
	return &SubmitController{submitService: submitService}
}

// Create judges a submission, or queues it when async is set.
func (h *SubmitController) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	input := service.SubmitInput{
		ProblemID:      req.ProblemID,
		UserID:         userID,
		LanguageID:     req.LanguageID,
		SourceCode:     req.SourceCode,
		IdempotencyKey: strings.TrimSpace(c.GetHeader("Idempotency-Key")),
		ClientIP:       c.ClientIP(),
	}
	if req.Async {
		status, err := h.submitService.Enqueue(c.Request.Context(), input)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Accepted(c, SubmitResponse{
			SubmissionID: status.SubmissionID,
			Status:       status.Status,
		})
		return
	}

	submission, err := h.submitService.Submit(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, SubmitResponse{
		SubmissionID: submission.SubmissionID,
		Status:       model.StatusFinished,
		Summary:      &submission.Summary,
		Results:      submission.Results,
	})
}

// Get returns one of the caller's submissions.
func (h *SubmitController) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	detail, err := h.submitService.Get(c.Request.Context(), userID, submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, detail)
}

// ListByProblem returns the caller's recent submissions for a problem.
func (h *SubmitController) ListByProblem(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	problemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || problemID <= 0 {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	list, err := h.submitService.ListByProblem(c.Request.Context(), userID, problemID, c.Query("language_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, list)
}

// SubmitRequest defines submission payload.
type SubmitRequest struct {
	ProblemID  int64  `json:"problem_id" binding:"required"`
	LanguageID string `json:"language_id" binding:"required"`
	SourceCode string `json:"source_code" binding:"required"`
	Async      bool   `json:"async"`
}

// SubmitResponse defines submission response payload.
type SubmitResponse struct {
	SubmissionID string             `json:"submission_id"`
	Status       model.JudgeStatus  `json:"status"`
	Summary      *model.Summary     `json:"summary,omitempty"`
	Results      []model.TestResult `json:"results,omitempty"`
}
