package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tubechat/tubechat/internal/common"
)

type passcodeReq struct {
	Passcode string `json:"passcode" binding:"required"`
}

// SetPasscode bootstraps panel access control. It only works once;
// changing the passcode afterwards requires direct store access.
func (h *Handler) SetPasscode(c *gin.Context) {
	var req passcodeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	has, err := h.Keys.HasPasscode(c.Request.Context())
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50010, "store error")
		return
	}
	if has {
		common.Fail(c, http.StatusConflict, 40902, "passcode already set")
		return
	}
	if err := h.Keys.SetPasscode(c.Request.Context(), req.Passcode); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50010, "store error")
		return
	}
	common.Ok(c, nil)
}

// Login checks the passcode and issues a short-lived bearer token.
func (h *Handler) Login(c *gin.Context) {
	var req passcodeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	okPass, err := h.Keys.CheckPasscode(c.Request.Context(), req.Passcode)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50010, "store error")
		return
	}
	if !okPass {
		common.Fail(c, http.StatusUnauthorized, 40103, "wrong passcode")
		return
	}

	claims := jwt.MapClaims{
		"sub": "panel",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.Cfg.JWTSecret))
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50011, "failed to sign token")
		return
	}
	common.Ok(c, gin.H{"token": token})
}

type credentialReq struct {
	Key string `json:"key" binding:"required"`
}

// SetCredential stores the chat-service bearer credential. It is global
// and independent of any session; it survives browser restarts where
// sessions do not.
func (h *Handler) SetCredential(c *gin.Context) {
	var req credentialReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := h.Keys.SetAPIKey(c.Request.Context(), strings.TrimSpace(req.Key)); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50010, "store error")
		return
	}
	common.Ok(c, nil)
}

// GetCredential reports presence only; the key itself never leaves the
// durable store.
func (h *Handler) GetCredential(c *gin.Context) {
	key, err := h.Keys.APIKey(c.Request.Context())
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50010, "store error")
		return
	}
	common.Ok(c, gin.H{"present": key != ""})
}
