// Admin HTTP handlers.
//
//   - GET  /threshold                                (read the live threshold)
//   - PUT  /threshold                                (replace it)
//   - GET  /reposts                                  (claimed posts, paginated)
//   - POST /channels/{channel}/posts/{id}/evaluate   (run one evaluation now)
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-memes-bot/internal/domain"
	"github.com/tbourn/go-memes-bot/internal/services"
	"github.com/tbourn/go-memes-bot/internal/settings"
	"github.com/tbourn/go-memes-bot/internal/utils"
)

// ThresholdService is the settings surface the handlers need.
type ThresholdService interface {
	Get(ctx context.Context) (int, error)
	// Set validates raw and stores it; invalid input wraps
	// services.ErrInvalidThreshold and changes nothing.
	Set(ctx context.Context, raw string) (int, error)
	ListReposts(ctx context.Context, page, pageSize int) ([]domain.Repost, int64, error)
}

// Evaluator runs one repost evaluation for a post.
type Evaluator interface {
	Evaluate(ctx context.Context, channelID, postID string) services.Outcome
}

// Handlers groups the admin endpoints.
type Handlers struct {
	thresholds ThresholdService
	engine     Evaluator
}

// New binds the handlers to their services.
func New(thresholds ThresholdService, engine Evaluator) *Handlers {
	return &Handlers{thresholds: thresholds, engine: engine}
}

//
// DTOs
//

// ThresholdResponse reports the live threshold.
type ThresholdResponse struct {
	Threshold int `json:"threshold" example:"10"`
}

// SetThresholdRequest replaces the threshold. Both 5 and "5" are accepted.
type SetThresholdRequest struct {
	Threshold json.RawMessage `json:"threshold" swaggertype:"integer" example:"5"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListRepostsResponse wraps a page of claimed posts, newest first.
type ListRepostsResponse struct {
	Reposts    []domain.Repost `json:"reposts"`
	Pagination Pagination      `json:"pagination"`
}

// EvaluateResponse describes the outcome of a manual evaluation.
type EvaluateResponse struct {
	PostID    string `json:"post_id" example:"1187654321098765432"`
	Outcome   string `json:"outcome" example:"skipped"`
	Reason    string `json:"reason,omitempty" example:"below_threshold"`
	Count     int    `json:"count,omitempty" example:"4"`
	Threshold int    `json:"threshold,omitempty" example:"10"`
}

//
// Helpers
//

// clampPagination reads page and page_size, bounding them to [1,∞) and
// [1,100] with defaults 1 and 20.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.Clamp(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}

// storeFailure maps store errors onto a status and code.
func storeFailure(c *gin.Context, err error) {
	switch {
	case errors.Is(err, settings.ErrUnavailable):
		fail(c, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "settings store unavailable")
	case errors.Is(err, services.ErrListingUnsupported):
		fail(c, http.StatusNotImplemented, ErrCodeNotImplemented, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

//
// Handlers
//

// GetThreshold godoc
// @ID          getThreshold
// @Summary     Read the repost threshold
// @Tags        Settings
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.ThresholdResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /threshold [get]
func (h *Handlers) GetThreshold(c *gin.Context) {
	n, err := h.thresholds.Get(c.Request.Context())
	if err != nil {
		storeFailure(c, err)
		return
	}
	ok(c, http.StatusOK, ThresholdResponse{Threshold: n})
}

// SetThreshold godoc
// @ID          setThreshold
// @Summary     Replace the repost threshold
// @Description Takes effect for the next evaluation. Non-numeric or non-positive values are rejected and leave the stored value unchanged.
// @Tags        Settings
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.SetThresholdRequest  true  "New threshold"
// @Success     200   {object}  handlers.ThresholdResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Invalid threshold"
// @Failure     401   {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Failure     503   {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /threshold [put]
func (h *Handlers) SetThreshold(c *gin.Context) {
	var req SetThresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Threshold) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body must be {\"threshold\": <positive integer>}")
		return
	}
	raw := strings.Trim(strings.TrimSpace(string(req.Threshold)), `"`)

	n, err := h.thresholds.Set(c.Request.Context(), raw)
	if errors.Is(err, services.ErrInvalidThreshold) {
		fail(c, http.StatusBadRequest, ErrCodeInvalidThreshold, "threshold must be a positive integer")
		return
	}
	if err != nil {
		storeFailure(c, err)
		return
	}
	ok(c, http.StatusOK, ThresholdResponse{Threshold: n})
}

// ListReposts godoc
// @ID          listReposts
// @Summary     List reposted posts (paginated)
// @Tags        Reposts
// @Produce     json
// @Security    BearerAuth
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListRepostsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Failure     501  {object}  handlers.ErrorResponse  "Store cannot list"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /reposts [get]
func (h *Handlers) ListReposts(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.thresholds.ListReposts(c.Request.Context(), page, pageSize)
	if err != nil {
		storeFailure(c, err)
		return
	}
	if items == nil {
		items = []domain.Repost{}
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListRepostsResponse{
		Reposts: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// evaluateTimeout bounds a manual evaluation once the caller has gone away.
const evaluateTimeout = time.Minute

// Evaluate godoc
// @ID          evaluatePost
// @Summary     Evaluate one post now
// @Description Runs the same pipeline as a live reaction. Safe to repeat: a post is never reposted twice.
// @Tags        Reposts
// @Produce     json
// @Security    BearerAuth
// @Param       channel  path  string  true  "Channel ID"
// @Param       id       path  string  true  "Post ID"
// @Success     200  {object}  handlers.EvaluateResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Failure     502  {object}  handlers.ErrorResponse  "Evaluation failed"
// @Router      /channels/{channel}/posts/{id}/evaluate [post]
func (h *Handlers) Evaluate(c *gin.Context) {
	channelID := strings.TrimSpace(c.Param("channel"))
	postID := strings.TrimSpace(c.Param("id"))
	if channelID == "" || postID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "channel and post id are required")
		return
	}

	// A claim must not be abandoned because the admin client disconnected.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), evaluateTimeout)
	defer cancel()

	out := h.engine.Evaluate(ctx, channelID, postID)
	if out.Kind == services.Failed {
		fail(c, http.StatusBadGateway, ErrCodeEvaluateFailed, out.Err.Error())
		return
	}
	ok(c, http.StatusOK, EvaluateResponse{
		PostID:    postID,
		Outcome:   out.Kind.String(),
		Reason:    string(out.Reason),
		Count:     out.Count,
		Threshold: out.Threshold,
	})
}
