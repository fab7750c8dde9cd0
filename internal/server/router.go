package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/mblog/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/memos"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/settings"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultTokenHeader = "token"

var (
	errMissingResolver = errors.New("principal resolver dependency required")
	errMissingUsers    = errors.New("users service dependency required")
	errMissingMemos    = errors.New("memos service dependency required")
	errMissingSettings = errors.New("settings store dependency required")
)

// PrincipalResolver turns the credential header into a principal.
type PrincipalResolver interface {
	Resolve(ctx context.Context, credential string) (auth.Principal, error)
	ResolveOptional(ctx context.Context, credential string) (*auth.Principal, error)
}

// Dependencies wires the HTTP surface.
type Dependencies struct {
	Resolver    PrincipalResolver
	Users       *users.Service
	Memos       *memos.Service
	Settings    *settings.Store
	TokenHeader string
	Logger      *zap.Logger
}

// NewHTTPHandler builds the /api router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Resolver == nil {
		return nil, errMissingResolver
	}
	if deps.Users == nil {
		return nil, errMissingUsers
	}
	if deps.Memos == nil {
		return nil, errMissingMemos
	}
	if deps.Settings == nil {
		return nil, errMissingSettings
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tokenHeader := strings.TrimSpace(deps.TokenHeader)
	if tokenHeader == "" {
		tokenHeader = defaultTokenHeader
	}

	handler := &httpHandler{
		resolver:    deps.Resolver,
		users:       deps.Users,
		memos:       deps.Memos,
		settings:    deps.Settings,
		tokenHeader: tokenHeader,
		logger:      logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOriginFunc: handler.allowOrigin,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Content-Type", tokenHeader},
		MaxAge:          12 * time.Hour,
	}))

	api := router.Group("/api")

	user := api.Group("/user")
	user.POST("/register", handler.handleRegister)
	user.POST("/login", handler.handleLogin)
	user.POST("/current", handler.optionalLogin, handler.handleCurrentUser)
	user.POST("/logout", handler.requireLogin, handler.handleLogout)
	user.POST("/update", handler.requireLogin, handler.handleUpdateUser)
	user.POST("/list", handler.requireLogin, handler.handleListUsers)
	user.POST("/listNames", handler.requireLogin, handler.handleListNames)
	user.POST("/statistics", handler.requireLogin, handler.handleUserStatistics)
	user.POST("/:id", handler.requireLogin, handler.handleGetUser)

	token := api.Group("/token")
	token.GET("", handler.requireLogin, handler.handleGetToken)
	token.POST("/reset", handler.requireLogin, handler.handleResetToken)
	token.POST("/enable", handler.requireLogin, handler.handleEnableToken)
	token.POST("/disable", handler.requireLogin, handler.handleDisableToken)

	memo := api.Group("/memo")
	memo.POST("/save", handler.requireLogin, handler.handleSaveMemo)
	memo.POST("/update", handler.requireLogin, handler.handleUpdateMemo)
	memo.POST("/remove", handler.requireLogin, handler.handleRemoveMemo)
	memo.POST("/setPriority", handler.requireLogin, handler.handleSetPriority)
	memo.POST("/relation", handler.requireLogin, handler.handleRelation)
	memo.POST("/list", handler.optionalLogin, handler.handleListMemos)
	memo.POST("/statistics", handler.optionalLogin, handler.handleMemoStatistics)
	memo.POST("/:id", handler.optionalLogin, handler.handleGetMemo)

	tag := api.Group("/tag")
	tag.POST("/list", handler.requireLogin, handler.handleListTags)
	tag.POST("/top10", handler.optionalLogin, handler.handleTopTags)
	tag.POST("/remove", handler.requireLogin, handler.handleRemoveTag)
	tag.POST("/save", handler.requireLogin, handler.handleSaveTags)

	comment := api.Group("/comment")
	comment.POST("/add", handler.optionalLogin, handler.handleAddComment)
	comment.POST("/query", handler.optionalLogin, handler.handleQueryComments)
	comment.POST("/remove", handler.requireLogin, handler.handleRemoveComment)
	comment.POST("/singleApprove", handler.requireLogin, handler.handleApproveComment)
	comment.POST("/memoApprove", handler.requireLogin, handler.handleApproveMemoComments)

	sysConfig := api.Group("/sysConfig")
	sysConfig.POST("/save", handler.requireLogin, handler.requireAdmin, handler.handleSaveSettings)
	sysConfig.GET("/get", handler.requireLogin, handler.requireAdmin, handler.handleAllSettings)
	sysConfig.GET("/", handler.handleFrontSettings)

	api.GET("/resource/:publicId", handler.handleGetResource)

	return router, nil
}

type httpHandler struct {
	resolver    PrincipalResolver
	users       *users.Service
	memos       *memos.Service
	settings    *settings.Store
	tokenHeader string
	logger      *zap.Logger
}

// allowOrigin admits every origin until CORS_DOMAIN_LIST names some.
func (h *httpHandler) allowOrigin(origin string) bool {
	configured, err := h.settings.Get(context.Background(), settings.KeyCORSDomainList)
	if err != nil {
		h.logger.Warn("cors domain list unavailable", zap.Error(err))
		return false
	}
	configured = strings.TrimSpace(configured)
	if configured == "" {
		return true
	}
	for _, allowed := range strings.Split(configured, ",") {
		if strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}
	return false
}
