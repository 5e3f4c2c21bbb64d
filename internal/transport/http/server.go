package http

import (
	"github.com/gin-gonic/gin"

	"homecare-ai/internal/bootstrap"
	"homecare-ai/internal/transport/http/handler"
	"homecare-ai/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(app.Logger), gin.Recovery())
	router.MaxMultipartMemory = 8 << 20

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	authHandler := handler.NewAuthHandler(app.AuthService)
	careLogHandler := handler.NewCareLogHandler(app.CareLogService, app.Config.Audio.MaxUploadMB)
	requireSession := middleware.AuthJWT(app.AuthService)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/logout", requireSession, authHandler.Logout)
	authGroup.GET("/me", requireSession, authHandler.Me)

	careLogGroup := v1.Group("/carelogs")
	careLogGroup.Use(requireSession)
	careLogGroup.POST("", careLogHandler.Create)
	careLogGroup.GET("", careLogHandler.List)
	careLogGroup.GET("/:id", careLogHandler.Get)
	careLogGroup.GET("/:id/txt", careLogHandler.DownloadTxt)
	careLogGroup.GET("/:id/pdf", careLogHandler.DownloadPDF)
	careLogGroup.POST("/:id/email", careLogHandler.Email)

	return router
}
