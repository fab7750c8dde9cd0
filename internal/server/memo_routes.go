package server

import (
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/memos"
	"github.com/gin-gonic/gin"
)

type tagSaveRequest struct {
	List []memos.TagRename `json:"list"`
}

func (h *httpHandler) handleSaveMemo(c *gin.Context) {
	var request memos.SaveRequest
	if err := bindJSON(c, &request); err != nil {
		h.fail(c, err)
		return
	}
	id, err := h.memos.Create(c.Request.Context(), *principalFrom(c), request)
	h.respond(c, id, err)
}

func (h *httpHandler) handleUpdateMemo(c *gin.Context) {
	var request memos.SaveRequest
	if err := bindJSON(c, &request); err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, nil, h.memos.Update(c.Request.Context(), *principalFrom(c), request))
}

func (h *httpHandler) handleRemoveMemo(c *gin.Context) {
	id, err := queryInt64(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, nil, h.memos.Delete(c.Request.Context(), *principalFrom(c), id))
}

func (h *httpHandler) handleSetPriority(c *gin.Context) {
	id, err := queryInt64(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	set := c.Query("set") == "true"
	h.respond(c, nil, h.memos.SetPriority(c.Request.Context(), *principalFrom(c), id, set))
}

func (h *httpHandler) handleRelation(c *gin.Context) {
	var request memos.RelationRequest
	if err := bindJSON(c, &request); err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, nil, h.memos.Relation(c.Request.Context(), *principalFrom(c), request))
}

func (h *httpHandler) handleListMemos(c *gin.Context) {
	var request memos.ListRequest
	if err := bindJSON(c, &request); err != nil {
		h.fail(c, err)
		return
	}
	result, err := h.memos.List(c.Request.Context(), principalFrom(c), request)
	h.respond(c, result, err)
}

func (h *httpHandler) handleGetMemo(c *gin.Context) {
	id, err := pathInt64(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	view, err := h.memos.Get(c.Request.Context(), principalFrom(c), id, c.Query("count") == "true")
	h.respond(c, view, err)
}

func (h *httpHandler) handleMemoStatistics(c *gin.Context) {
	var request memos.StatisticsRequest
	if err := bindJSON(c, &request); err != nil {
		h.fail(c, err)
		return
	}
	stats, err := h.memos.Statistics(c.Request.Context(), principalFrom(c), request)
	h.respond(c, stats, err)
}

func (h *httpHandler) handleListTags(c *gin.Context) {
	tags, err := h.memos.ListTags(c.Request.Context(), principalFrom(c).UserID)
	h.respond(c, tags, err)
}

func (h *httpHandler) handleTopTags(c *gin.Context) {
	tags, err := h.memos.TopTags(c.Request.Context(), principalFrom(c))
	h.respond(c, tags, err)
}

func (h *httpHandler) handleRemoveTag(c *gin.Context) {
	id, err := queryInt64(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, nil, h.memos.RemoveTag(c.Request.Context(), principalFrom(c).UserID, id))
}

func (h *httpHandler) handleSaveTags(c *gin.Context) {
	var request tagSaveRequest
	if err := bindJSON(c, &request); err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, nil, h.memos.RenameTags(c.Request.Context(), principalFrom(c).UserID, request.List))
}

func (h *httpHandler) handleAddComment(c *gin.Context) {
	var request memos.CommentRequest
	if err := bindJSON(c, &request); err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, nil, h.memos.AddComment(c.Request.Context(), principalFrom(c), request))
}

func (h *httpHandler) handleQueryComments(c *gin.Context) {
	var request memos.CommentQuery
	if err := bindJSON(c, &request); err != nil {
		h.fail(c, err)
		return
	}
	page, err := h.memos.QueryComments(c.Request.Context(), principalFrom(c), request)
	h.respond(c, page, err)
}

func (h *httpHandler) handleRemoveComment(c *gin.Context) {
	id, err := queryInt64(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, nil, h.memos.RemoveComment(c.Request.Context(), *principalFrom(c), id))
}

func (h *httpHandler) handleApproveComment(c *gin.Context) {
	id, err := queryInt64(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, nil, h.memos.ApproveComment(c.Request.Context(), *principalFrom(c), id))
}

func (h *httpHandler) handleApproveMemoComments(c *gin.Context) {
	id, err := queryInt64(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, nil, h.memos.ApproveMemoComments(c.Request.Context(), *principalFrom(c), id))
}

func (h *httpHandler) handleGetResource(c *gin.Context) {
	view, err := h.memos.Resource(c.Request.Context(), c.Param("publicId"))
	h.respond(c, view, err)
}
