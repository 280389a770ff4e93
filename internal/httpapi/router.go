package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tubechat/tubechat/internal/chat"
	"github.com/tubechat/tubechat/internal/common"
	"github.com/tubechat/tubechat/internal/config"
	"github.com/tubechat/tubechat/internal/extract"
	"github.com/tubechat/tubechat/internal/httpapi/handlers"
	"github.com/tubechat/tubechat/internal/httpapi/middleware"
	"github.com/tubechat/tubechat/internal/relay"
	"github.com/tubechat/tubechat/internal/store/keystore"
)

func NewRouter(cfg config.Config, keys *keystore.Store, rly *relay.Relay, chatSvc *chat.Service, extractor *extract.Orchestrator) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(cfg, keys, rly, chatSvc, extractor)

	r.GET("/ping", h.Ping)
	r.POST("/passcode", h.SetPasscode)
	r.POST("/login", h.Login)

	panel := r.Group("/")
	if cfg.JWTSecret != "" {
		panel.Use(middleware.AuthRequired(cfg.JWTSecret))
	}

	panel.POST("/credential", h.SetCredential)
	panel.GET("/credential", h.GetCredential)

	panel.POST("/pages", h.OpenPage)
	panel.DELETE("/pages/:page_id", h.ClosePage)

	panel.POST("/transcript", h.GetTranscript)

	panel.GET("/videos/:video_id/session", h.GetSession)
	panel.DELETE("/videos/:video_id/session", h.ClearSession)
	panel.POST("/videos/:video_id/messages", h.SendMessage)

	return r
}
