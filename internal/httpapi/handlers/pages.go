package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/tubechat/tubechat/internal/common"
	"github.com/tubechat/tubechat/internal/page"
	"github.com/tubechat/tubechat/internal/relay"
)

type openPageReq struct {
	URL string `json:"url" binding:"required"`
}

// OpenPage loads the target page and activates the extractor capability
// for it: a page agent is attached to the relay and serves transcript
// requests until the page is closed. The relay itself never loads pages.
func (h *Handler) OpenPage(c *gin.Context) {
	var req openPageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	doc, err := page.Load(c.Request.Context(), h.pageClient, h.Cfg.PageUserAgent, req.URL)
	if err != nil {
		common.Fail(c, http.StatusBadGateway, 50201, err.Error())
		return
	}

	pageID := ulid.Make().String()
	agent := h.Relay.Attach(pageID)

	agentCtx, cancel := context.WithCancel(context.Background())
	go agent.Serve(agentCtx, func(ctx context.Context, req relay.Request) relay.Response {
		if req.Action != relay.ActionGetTranscript {
			return relay.Response{Error: "unknown action: " + req.Action}
		}
		res, err := h.Extractor.Extract(ctx, doc)
		if err != nil {
			return relay.Response{Error: err.Error()}
		}
		return relay.Response{
			VideoID:     doc.VideoID,
			Transcript:  res.Transcript,
			Title:       res.Title,
			Description: res.Description,
		}
	})

	h.mu.Lock()
	h.pages[pageID] = &openPage{doc: doc, cancel: cancel}
	h.mu.Unlock()

	common.Ok(c, gin.H{
		"page_id":  pageID,
		"video_id": doc.VideoID,
		"title":    doc.Title(),
	})
}

// ClosePage detaches the page agent and discards the loaded document.
func (h *Handler) ClosePage(c *gin.Context) {
	pageID := c.Param("page_id")

	h.mu.Lock()
	p := h.pages[pageID]
	delete(h.pages, pageID)
	h.mu.Unlock()

	if p == nil {
		common.Fail(c, http.StatusNotFound, 40401, "page not found")
		return
	}
	h.Relay.Detach(pageID)
	p.cancel()

	common.Ok(c, nil)
}
