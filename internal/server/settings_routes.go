package server

import (
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/settings"
	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleSaveSettings(c *gin.Context) {
	var items []settings.Item
	if err := bindJSON(c, &items); err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, nil, h.settings.Save(c.Request.Context(), items))
}

func (h *httpHandler) handleAllSettings(c *gin.Context) {
	items, err := h.settings.All(c.Request.Context())
	h.respond(c, items, err)
}

func (h *httpHandler) handleFrontSettings(c *gin.Context) {
	items, err := h.settings.Front(c.Request.Context())
	h.respond(c, items, err)
}
