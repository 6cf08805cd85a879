package server

import (
	"errors"
	"net/http"

	"github.com/WBHankins93/messaging-app/internal/auth"
	"github.com/WBHankins93/messaging-app/internal/models"
	"github.com/WBHankins93/messaging-app/internal/repository"
	"github.com/WBHankins93/messaging-app/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const secureDataMessage = "This is secure data accessible only with a valid token"

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	userSvc *service.UserService
	msgSvc  *service.MessageService
}

func NewHandler(userSvc *service.UserService, msgSvc *service.MessageService) *Handler {
	return &Handler{userSvc: userSvc, msgSvc: msgSvc}
}

// credentials 同时支持 JSON 与表单提交。
type credentials struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Messaging app backend"})
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// Signup 处理用户注册请求。
func (h *Handler) Signup(c *gin.Context) {
	var req credentials
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if _, err := h.userSvc.Signup(c.Request.Context(), req.Username, req.Password); err != nil {
		writeError(c, err, "signup")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully"})
}

// Login 处理用户登录请求，返回 access 与 refresh token。
func (h *Handler) Login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	pair, err := h.userSvc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err, "login")
		return
	}
	c.JSON(http.StatusOK, pair)
}

// Refresh 用 refresh token 换取新的 access token。
func (h *Handler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" form:"refresh_token"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	pair, err := h.userSvc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err, "refresh token")
		return
	}
	c.JSON(http.StatusOK, pair)
}

// ListUsers 仅管理员可见。
func (h *Handler) ListUsers(c *gin.Context) {
	names, err := h.userSvc.ListUsernames(c.Request.Context())
	if err != nil {
		writeError(c, err, "list users")
		return
	}
	c.JSON(http.StatusOK, names)
}

func (h *Handler) SecureData(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": secureDataMessage})
}

// History 返回房间的全部历史消息，room_id 缺省或为空时使用默认房间。
func (h *Handler) History(c *gin.Context) {
	roomID := c.Query("room_id")
	if roomID == "" {
		roomID = models.DefaultRoom
	}
	entries, err := h.msgSvc.History(c.Request.Context(), roomID)
	if err != nil {
		writeError(c, err, "chat history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "messages": entries})
}

// writeError 把业务错误映射为状态码，不向调用方暴露内部细节。
func writeError(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, repository.ErrDuplicateUsername):
		c.JSON(http.StatusBadRequest, gin.H{"error": "username already registered"})
	case errors.Is(err, service.ErrMalformedRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
	case errors.Is(err, auth.ErrUnknownSubject):
		c.JSON(http.StatusForbidden, gin.H{"error": "token subject no longer exists"})
	case errors.Is(err, auth.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect username or password"})
	case errors.Is(err, auth.ErrUnauthenticated):
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "could not validate credentials"})
	default:
		log.Error().Err(err).Str("op", op).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
