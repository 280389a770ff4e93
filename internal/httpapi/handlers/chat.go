package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tubechat/tubechat/internal/chat"
	"github.com/tubechat/tubechat/internal/common"
	"github.com/tubechat/tubechat/internal/relay"
)

// GetTranscript forwards one getTranscript request through the relay to
// the active page agent and records the result as the video's session.
// The reply carries the answering page's own video id, so the transcript
// is saved under that video even if a different page became active while
// the extraction was in flight. A failed extraction leaves any existing
// session untouched.
func (h *Handler) GetTranscript(c *gin.Context) {
	resp := h.Relay.Forward(c.Request.Context(), relay.Request{Action: relay.ActionGetTranscript})
	if resp.Error != "" {
		common.Fail(c, http.StatusBadGateway, 50202, resp.Error)
		return
	}

	sess, err := h.Chat.RecordExtraction(c.Request.Context(), resp.VideoID, resp.Transcript, resp.Title, resp.Description)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to save session")
		return
	}

	state, err := h.Chat.State(c.Request.Context(), resp.VideoID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to read state")
		return
	}

	common.Ok(c, gin.H{
		"video_id":    sess.VideoID,
		"title":       sess.Title,
		"description": sess.Description,
		"state":       state,
	})
}

// GetSession reconstructs the full prior conversation for a video so
// reopening the panel does not need a re-fetch.
func (h *Handler) GetSession(c *gin.Context) {
	videoID := c.Param("video_id")

	state, err := h.Chat.State(c.Request.Context(), videoID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to read state")
		return
	}

	history, err := h.Chat.History(c.Request.Context(), videoID)
	if err != nil && !errors.Is(err, chat.ErrNoSession) {
		common.Fail(c, http.StatusInternalServerError, 50005, "failed to load session")
		return
	}

	common.Ok(c, gin.H{
		"video_id": videoID,
		"state":    state,
		"history":  history,
	})
}

// ClearSession discards the session for exactly one video id.
func (h *Handler) ClearSession(c *gin.Context) {
	videoID := c.Param("video_id")
	if err := h.Chat.Clear(c.Request.Context(), videoID); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50006, "failed to clear session")
		return
	}
	common.Ok(c, nil)
}

type sendMessageReq struct {
	Message string `json:"message"`
}

// SendMessage runs one conversation turn for a video.
func (h *Handler) SendMessage(c *gin.Context) {
	videoID := c.Param("video_id")

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	reply, err := h.Chat.Submit(c.Request.Context(), videoID, req.Message)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		common.Fail(c, http.StatusBadRequest, 10002, "message is empty")
	case errors.Is(err, chat.ErrBusy):
		common.Fail(c, http.StatusConflict, 40901, "a reply is already pending")
	case errors.Is(err, chat.ErrNoCredential):
		common.Fail(c, http.StatusPreconditionFailed, 41201, "chat credential is not set")
	case errors.Is(err, chat.ErrNoSession):
		common.Fail(c, http.StatusNotFound, 40402, "no transcript loaded for this video")
	case err != nil:
		common.Fail(c, http.StatusInternalServerError, 50007, "failed to send message")
	default:
		common.Ok(c, gin.H{
			"video_id": videoID,
			"reply":    reply,
		})
	}
}
