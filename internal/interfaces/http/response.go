package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/workflow"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/imprest"
)

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody describes a failed request
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// ImprestResponse is a record plus the fields derived from it
type ImprestResponse struct {
	*entity.Imprest
	ApprovalProgress int  `json:"approval_progress"`
	Replayed         bool `json:"replayed,omitempty"`
}

func toImprestResponse(rec *entity.Imprest) ImprestResponse {
	return ImprestResponse{Imprest: rec, ApprovalProgress: imprest.ApprovalProgress(rec)}
}

func toTransitionResponse(res *workflow.TransitionResult) ImprestResponse {
	out := toImprestResponse(res.Record)
	out.Replayed = res.Replayed
	return out
}

func toImprestList(records []*entity.Imprest) []ImprestResponse {
	out := make([]ImprestResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toImprestResponse(rec))
	}
	return out
}

func statusFor(kind imprest.Kind) int {
	switch kind {
	case imprest.KindValidation:
		return http.StatusUnprocessableEntity
	case imprest.KindState, imprest.KindConflict:
		return http.StatusConflict
	case imprest.KindForbidden:
		return http.StatusForbidden
	case imprest.KindUnauthorized:
		return http.StatusUnauthorized
	case imprest.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes the error envelope; message replaces the error text when set
func abortWithError(c *gin.Context, err error, message string) {
	kind := imprest.KindOf(err)
	body := &ErrorBody{Kind: string(kind), Message: message, Field: imprest.FieldOf(err)}
	if body.Message == "" {
		body.Message = err.Error()
	}
	if kind == imprest.KindInternal {
		body.Message = "internal error"
	}
	c.AbortWithStatusJSON(statusFor(kind), Response{Success: false, Error: body})
}

func badRequest(field, reason string) error {
	return &imprest.ValidationError{Field: field, Reason: reason, Err: imprest.ErrInvalidInput}
}

// bindBody decodes a JSON body; an empty body is accepted only when optional
func bindBody(c *gin.Context, dst interface{}, optional bool) error {
	if c.Request.Body == nil || c.Request.Body == http.NoBody || c.Request.ContentLength == 0 {
		if optional {
			return nil
		}
		return badRequest("body", "request body is required")
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			if optional {
				return nil
			}
			return badRequest("body", "request body is required")
		}
		return badRequest("body", "malformed JSON: "+err.Error())
	}
	return nil
}
