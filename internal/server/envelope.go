package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/mblog/backend/internal/apperr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const messageSuccess = "success"

// envelope is the body of every response; transport status is always 200.
type envelope struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data"`
}

func (h *httpHandler) ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, envelope{Code: apperr.CodeSuccess, Msg: messageSuccess, Data: data})
}

func (h *httpHandler) fail(c *gin.Context, err error) {
	appErr := apperr.From(err)
	if appErr.Kind() == apperr.KindSystem {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}
	c.JSON(http.StatusOK, envelope{Code: appErr.Code(), Msg: appErr.Message()})
}

// respond writes data on success and the failure envelope otherwise.
func (h *httpHandler) respond(c *gin.Context, data interface{}, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, data)
}

// bindJSON decodes the body into target. An empty body leaves target untouched.
func bindJSON(c *gin.Context, target interface{}) error {
	if err := c.ShouldBindJSON(target); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Param("invalid request body")
	}
	return nil
}

func queryInt64(c *gin.Context, name string) (int64, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(c.Query(name)), 10, 64)
	if err != nil {
		return 0, apperr.Param(name + " is required")
	}
	return value, nil
}

func pathInt64(c *gin.Context, name string) (int64, error) {
	value, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		return 0, apperr.Param(name + " must be numeric")
	}
	return value, nil
}
