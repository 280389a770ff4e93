package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tubechat/tubechat/internal/chat"
	"github.com/tubechat/tubechat/internal/common"
	"github.com/tubechat/tubechat/internal/config"
	"github.com/tubechat/tubechat/internal/extract"
	"github.com/tubechat/tubechat/internal/page"
	"github.com/tubechat/tubechat/internal/relay"
	"github.com/tubechat/tubechat/internal/store/keystore"
)

// openPage is one page context with an attached relay agent.
type openPage struct {
	doc    *page.Document
	cancel context.CancelFunc
}

type Handler struct {
	Cfg       config.Config
	Keys      *keystore.Store
	Relay     *relay.Relay
	Chat      *chat.Service
	Extractor *extract.Orchestrator

	pageClient *http.Client

	mu    sync.Mutex
	pages map[string]*openPage
}

func NewHandler(cfg config.Config, keys *keystore.Store, rly *relay.Relay, chatSvc *chat.Service, extractor *extract.Orchestrator) *Handler {
	return &Handler{
		Cfg:        cfg,
		Keys:       keys,
		Relay:      rly,
		Chat:       chatSvc,
		Extractor:  extractor,
		pageClient: &http.Client{Timeout: 30 * time.Second},
		pages:      make(map[string]*openPage),
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.Ok(c, gin.H{"pong": true})
}
