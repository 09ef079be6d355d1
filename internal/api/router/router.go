// Package router 注册HTTP路由。
package router

import (
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"

	"job-portal-go/internal/api/handler"
)

// RegisterRoutes 挂载所有API路由
// authMW 保护投递接口，limitMW 在认证之后按候选人限流
func RegisterRoutes(h *server.Hertz, appHandler *handler.ApplicationHandler, authMW, limitMW app.HandlerFunc) {
	api := h.Group("/api/v1")
	{
		api.GET("/health", appHandler.HandleHealth)
		api.GET("/jobs", appHandler.HandleListJobs)
		api.POST("/jobs/apply", authMW, limitMW, appHandler.HandleSubmit)
	}
}
