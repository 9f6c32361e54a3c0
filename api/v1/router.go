package v1

import (
	"go_certbot/api/v1/middleware"
	"go_certbot/api/v1/orders"
	"go_certbot/api/v1/updates"
	"go_certbot/internal/auth"
	"go_certbot/internal/bot"
	"go_certbot/internal/httpx"
	"go_certbot/internal/query"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Deps are the services behind the API
type Deps struct {
	Dispatcher *bot.Dispatcher
	Users      *auth.Service
	Query      *query.Service
	Logger     *logrus.Entry
}

// SetupRouter sets up the API v1 routes
func SetupRouter(r *gin.Engine, deps Deps) {
	r.Use(middleware.RequestLogger(deps.Logger.WithField("component", "http")))

	v1 := r.Group("/api/v1")
	{
		// Public routes
		v1.GET("/ping", pingHandler)

		// Front-end routes (bot scope token required)
		protected := v1.Group("")
		protected.Use(middleware.AuthRequired(auth.ScopeBot))
		{
			updatesHandler := updates.NewHandler(deps.Dispatcher)
			protected.POST("/bot/updates", updatesHandler.Handle)

			ordersHandler := orders.NewHandler(deps.Users, deps.Query)
			usersGroup := protected.Group("/users/:externalId")
			{
				usersGroup.GET("/status", ordersHandler.Status)
				usersGroup.GET("/orders", ordersHandler.List)
				usersGroup.GET("/orders/:id", ordersHandler.Get)
				usersGroup.GET("/orders/:id/files/:kind", ordersHandler.Download)
			}
		}
	}
}

// pingHandler handles the ping request using unified response
func pingHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"pong": true,
	})
}
