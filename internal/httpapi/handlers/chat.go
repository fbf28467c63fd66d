package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kryote/support-chat/internal/chat"
	"github.com/kryote/support-chat/internal/common"
	"github.com/kryote/support-chat/internal/httpapi/middleware"
)

func (h *Handler) ListChatSessions(c *gin.Context) {
	uid, ok := middleware.UserIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	sessions, err := h.ChatSvc.ListSessions(c.Request.Context(), uid, 50)
	if err != nil {
		h.Log.Error("list sessions failed", "user_id", uid, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list sessions")
		return
	}

	out := make([]gin.H, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, gin.H{
			"session_id": s.ID,
			"title":      s.Title,
			"created_at": s.CreatedAt,
			"updated_at": s.UpdatedAt,
		})
	}
	common.OK(c, gin.H{"sessions": out})
}

func (h *Handler) CreateChatSession(c *gin.Context) {
	uid, ok := middleware.UserIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	sess, err := h.ChatSvc.CreateSession(c.Request.Context(), uid)
	if err != nil {
		h.Log.Error("create session failed", "user_id", uid, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create session")
		return
	}

	common.OK(c, gin.H{"session_id": sess.ID})
}

func (h *Handler) ListChatMessages(c *gin.Context) {
	uid, ok := middleware.UserIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	sessionID := c.Param("session_id")

	limit, _ := strconv.Atoi(c.Query("limit"))
	var beforeID uint64
	if v := c.Query("before_id"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			beforeID = n
		}
	}

	msgs, hasMore, err := h.ChatSvc.History(c.Request.Context(), uid, sessionID, beforeID, limit)
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "session not found")
			return
		}
		h.Log.Error("list messages failed", "user_id", uid, "session_id", sessionID, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}

	// The oldest id on this page is the cursor for the next scroll-back.
	var nextBeforeID uint64
	if len(msgs) > 0 {
		nextBeforeID = msgs[0].ID
	}

	common.OK(c, gin.H{
		"messages":       msgs,
		"has_more":       hasMore,
		"next_before_id": nextBeforeID,
	})
}

type sendMessageReq struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message" binding:"required"`
}

// SendChatMessage runs a full turn synchronously. An empty session_id lazily
// creates a session first, so a visitor can type before ever clicking "new
// chat".
func (h *Handler) SendChatMessage(c *gin.Context) {
	uid, ok := middleware.UserIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sess, err := h.ChatSvc.CreateSession(c.Request.Context(), uid)
		if err != nil {
			h.Log.Error("lazy create session failed", "user_id", uid, "error", err)
			common.Fail(c, http.StatusInternalServerError, 50001, "failed to create session")
			return
		}
		sessionID = sess.ID
	}

	assistantID, err := h.ChatSvc.SubmitTurn(c.Request.Context(), uid, sessionID, req.Message)
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "session not found")
			return
		}
		h.Log.Error("submit turn failed", "user_id", uid, "session_id", sessionID, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to process message")
		return
	}

	common.OK(c, gin.H{
		"session_id":           sessionID,
		"assistant_message_id": assistantID,
	})
}

type sendMessageAsyncReq struct {
	SessionID      string `json:"session_id" binding:"required"`
	Message        string `json:"message" binding:"required"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *Handler) SendChatMessageAsync(c *gin.Context) {
	uid, ok := middleware.UserIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageAsyncReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if len(key) > 128 {
		common.Fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}
	var keyPtr *string
	if key != "" {
		keyPtr = &key
	}

	job, created, err := h.ChatSvc.EnqueueTurn(c.Request.Context(), uid, req.SessionID, req.Message, keyPtr)
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "session not found")
			return
		}
		h.Log.Error("enqueue turn failed", "user_id", uid, "session_id", req.SessionID, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	// Publish only freshly created jobs; a repeated idempotency key returns
	// the job already in flight.
	if created {
		if err := h.Rabbit.PublishTurnJob(c.Request.Context(), job.ID); err != nil {
			h.Log.Error("publish turn job failed", "job_id", job.ID, "error", err)
			common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
	}

	common.OK(c, gin.H{
		"job_id": job.ID,
		"status": job.Status,
	})
}

func (h *Handler) GetTurnJob(c *gin.Context) {
	uid, ok := middleware.UserIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	job, err := h.ChatSvc.GetTurnJobForUser(c.Request.Context(), uid, jobID)
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		h.Log.Error("get turn job failed", "user_id", uid, "job_id", jobID, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{
		"job_id":            job.ID,
		"session_id":        job.ChatSessionID,
		"status":            job.Status,
		"result_message_id": job.ResultMessageID,
		"error":             job.Error,
	})
}
