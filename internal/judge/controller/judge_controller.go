package controller

import (
	"context"

	"codejudge/internal/judge/language"
	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// Judger runs a solution against caller-supplied test cases.
type Judger interface {
	Judge(ctx context.Context, languageID, userCode string, testCases []model.TestCase) (*model.Verdict, error)
}

const (
	defaultMaxCodeBytes = 64 << 10
	defaultMaxTestCases = 50
)

// RunLimits bounds an ad-hoc judging request. Zero values take defaults.
type RunLimits struct {
	MaxCodeBytes int
	MaxTestCases int
}

// JudgeController serves the language listing and ad-hoc judging.
type JudgeController struct {
	registry *language.Registry
	judge    Judger
	limits   RunLimits
}

// NewJudgeController creates a new controller.
func NewJudgeController(registry *language.Registry, judge Judger, limits RunLimits) *JudgeController {
	if registry == nil {
		registry = language.Default()
	}
	if limits.MaxCodeBytes <= 0 {
		limits.MaxCodeBytes = defaultMaxCodeBytes
	}
	if limits.MaxTestCases <= 0 {
		limits.MaxTestCases = defaultMaxTestCases
	}
	return &JudgeController{registry: registry, judge: judge, limits: limits}
}

// Languages lists supported languages.
func (h *JudgeController) Languages(c *gin.Context) {
	descriptors := h.registry.List()
	items := make([]LanguageItem, 0, len(descriptors))
	for _, d := range descriptors {
		items = append(items, LanguageItem{ID: d.ID, Name: d.Name, EngineID: d.EngineID})
	}
	response.Success(c, items)
}

// Run judges the request's code against its own test cases.
func (h *JudgeController) Run(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	if len(req.SourceCode) > h.limits.MaxCodeBytes {
		response.Error(c, appErr.New(appErr.CodeTooLarge).WithMessage("source code too large"))
		return
	}
	if len(req.TestCases) > h.limits.MaxTestCases {
		response.Error(c, appErr.Newf(appErr.TestCaseInvalid, "at most %d test cases per run", h.limits.MaxTestCases))
		return
	}
	verdict, err := h.judge.Judge(c.Request.Context(), req.LanguageID, req.SourceCode, req.TestCases)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, verdict)
}

// LanguageItem is one entry of the language listing.
type LanguageItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	EngineID int    `json:"engine_id"`
}

// RunRequest defines the ad-hoc judging payload.
type RunRequest struct {
	LanguageID string           `json:"language_id"`
	SourceCode string           `json:"source_code"`
	TestCases  []model.TestCase `json:"test_cases"`
}
