// Package router 注册 HTTP 路由
package router

import (
	"github.com/cloudwego/hertz/pkg/route"

	"github.com/hildam/deep-dive-go/biz/handler"
)

// Register 注册全部路由，同一层级的路径参数共用 :id
func Register(r route.IRoutes, h *handler.Handler) {
	r.GET("/healthz", h.Healthz)

	r.POST("/deepdive/:user/:id", h.CreateDeepDive)
	r.GET("/deepdive/:user/:id", h.GetReport)
	r.POST("/deepdive/:user/:id/continue", h.ContinueDeepDive)

	r.POST("/maestro/run", h.MaestroRun)
}
