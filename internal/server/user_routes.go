package server

import (
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/users"
	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request users.RegisterRequest
	if err := bindJSON(c, &request); err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, nil, h.users.Register(c.Request.Context(), request))
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequest
	if err := bindJSON(c, &request); err != nil {
		h.fail(c, err)
		return
	}
	result, err := h.users.Login(c.Request.Context(), request.Username, request.Password)
	h.respond(c, result, err)
}

// handleLogout has nothing to revoke: web credentials are stateless.
func (h *httpHandler) handleLogout(c *gin.Context) {
	h.ok(c, nil)
}

func (h *httpHandler) handleUpdateUser(c *gin.Context) {
	var request users.UpdateRequest
	if err := bindJSON(c, &request); err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, nil, h.users.Update(c.Request.Context(), *principalFrom(c), request))
}

func (h *httpHandler) handleCurrentUser(c *gin.Context) {
	profile, err := h.users.Current(c.Request.Context(), principalFrom(c))
	h.respond(c, profile, err)
}

func (h *httpHandler) handleGetUser(c *gin.Context) {
	id, err := pathInt64(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	profile, err := h.users.Get(c.Request.Context(), id)
	h.respond(c, profile, err)
}

func (h *httpHandler) handleListUsers(c *gin.Context) {
	profiles, err := h.users.List(c.Request.Context(), *principalFrom(c))
	h.respond(c, profiles, err)
}

func (h *httpHandler) handleListNames(c *gin.Context) {
	names, err := h.users.Names(c.Request.Context())
	h.respond(c, names, err)
}

func (h *httpHandler) handleUserStatistics(c *gin.Context) {
	stats, err := h.memos.UserStatistics(c.Request.Context(), principalFrom(c).UserID)
	h.respond(c, stats, err)
}

func (h *httpHandler) handleGetToken(c *gin.Context) {
	token, err := h.users.Token(c.Request.Context(), principalFrom(c).UserID)
	h.respond(c, token, err)
}

func (h *httpHandler) handleResetToken(c *gin.Context) {
	h.respond(c, nil, h.users.ResetToken(c.Request.Context(), principalFrom(c).UserID))
}

func (h *httpHandler) handleEnableToken(c *gin.Context) {
	h.respond(c, nil, h.users.EnableToken(c.Request.Context(), principalFrom(c).UserID))
}

func (h *httpHandler) handleDisableToken(c *gin.Context) {
	h.respond(c, nil, h.users.DisableToken(c.Request.Context(), principalFrom(c).UserID))
}
