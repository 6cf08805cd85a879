package server

import (
	"net/http"

	"github.com/WBHankins93/messaging-app/internal/auth"
	"github.com/WBHankins93/messaging-app/internal/config"
	"github.com/WBHankins93/messaging-app/internal/metrics"
	"github.com/WBHankins93/messaging-app/internal/mw"
	"github.com/WBHankins93/messaging-app/internal/service"
	"github.com/WBHankins93/messaging-app/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// ServiceName 同时用作 tracer 名称与 OTel resource 的 service.name。
const ServiceName = "messaging-app"

// Deps 汇总路由需要的全部依赖，由 main 组装。
type Deps struct {
	Users    *service.UserService
	Messages *service.MessageService
	Gate     *auth.Gate
	Relay    *ws.Handler
	Limiter  *mw.RL
}

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(ServiceName))
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	if d.Limiter != nil {
		r.Use(d.Limiter.Middleware())
	}

	h := NewHandler(d.Users, d.Messages)

	r.GET("/", h.Root)
	r.GET("/ping", h.Ping)
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/signup", h.Signup)
	r.POST("/token", h.Login)
	r.POST("/token/refresh", h.Refresh)

	// 需要 Bearer Token 的业务接口。
	authed := r.Group("")
	authed.Use(d.Gate.Middleware())
	authed.GET("/secure-data", h.SecureData)
	authed.GET("/chat/history", h.History)
	authed.GET("/users", auth.AdminOnly(), h.ListUsers)

	// 握手阶段自行鉴权，支持 header、query 与首帧三种方式。
	r.GET("/ws/:room_id", d.Relay.Serve)
	return r
}
