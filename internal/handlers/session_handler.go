package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"interview-service/internal/guardrail"
	"interview-service/internal/models"
	"interview-service/internal/quota"
	"interview-service/internal/service"
)

type SessionHandler struct {
	Service *service.SessionService
}

func NewSessionHandler(s *service.SessionService) *SessionHandler {
	return &SessionHandler{Service: s}
}

// statusFor maps engine error kinds onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSessionNotActive), errors.Is(err, service.ErrNoPendingQuestion):
		return http.StatusConflict
	case errors.Is(err, quota.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, guardrail.ErrGeneratorFailure), errors.Is(err, guardrail.ErrIncompleteContent):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// CreateSession starts a new interview session and returns the first question.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req struct {
		Role  string `json:"role" binding:"required"`
		Level string `json:"level" binding:"required"`
		Mode  string `json:"mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return
	}
	if req.Mode == "" {
		req.Mode = "text"
	}

	userID := c.GetString("user_id")

	session, err := h.Service.Start(context.Background(), userID, req.Role, req.Level, req.Mode)
	if err != nil {
		c.JSON(statusFor(err), gin.H{
			"error":   "Failed to start session",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session":   session,
		"question":  session.Questions[0],
		"next_step": "Submit an answer to /answer to continue",
	})
}

// SubmitAnswer processes the answer to the current question and returns the
// evaluation plus the next question (or the terminal state).
func (h *SessionHandler) SubmitAnswer(c *gin.Context) {
	sessionID := c.Param("id")

	var req struct {
		Answer string               `json:"answer" binding:"required"`
		Voice  *models.VoiceMetrics `json:"voice,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid answer format",
			"details": err.Error(),
		})
		return
	}

	result, err := h.Service.ProcessAnswer(context.Background(), sessionID, req.Answer, req.Voice)
	if err != nil {
		c.JSON(statusFor(err), gin.H{
			"error":   "Failed to process answer",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// CompleteSession finalizes the session and returns the report.
func (h *SessionHandler) CompleteSession(c *gin.Context) {
	sessionID := c.Param("id")

	session, err := h.Service.Complete(context.Background(), sessionID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{
			"error":   "Failed to complete session",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     session.Status,
		"report":     session.FinalReport,
		"aggregates": session.Aggregates,
	})
}

// AbandonSession marks the session abandoned.
func (h *SessionHandler) AbandonSession(c *gin.Context) {
	sessionID := c.Param("id")

	if err := h.Service.Abandon(context.Background(), sessionID); err != nil {
		c.JSON(statusFor(err), gin.H{
			"error":   "Failed to abandon session",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session abandoned"})
}

// GetSession returns the full session document.
func (h *SessionHandler) GetSession(c *gin.Context) {
	session, err := h.Service.GetSession(context.Background(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, session)
}

// GetSessionStatus returns a compact progress projection.
func (h *SessionHandler) GetSessionStatus(c *gin.Context) {
	session, err := h.Service.GetSession(context.Background(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "Session not found"})
		return
	}

	answered := 0
	for i := range session.Questions {
		if session.Questions[i].Answer != nil {
			answered++
		}
	}
	remaining := time.Until(session.Deadline).Seconds()
	if remaining < 0 || session.IsTerminal() {
		remaining = 0
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            session.Status,
		"total_questions":   session.TotalQuestions,
		"answered":          answered,
		"max_questions":     session.MaxQuestions,
		"aggregates":        session.Aggregates,
		"weakness_counts":   session.WeaknessCounts,
		"remaining_seconds": int(remaining),
	})
}
