package router

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/calorily/backend/internal/api"
	"github.com/calorily/backend/internal/middleware"
)

// SetupRouter configures the application routes
func SetupRouter(
	authHandler *api.AuthHandler,
	mealHandler *api.MealHandler,
	wsHandler *api.WSHandler,
	validator middleware.TokenValidator,
) *gin.Engine {
	router := gin.Default()

	// Permissive CORS: mobile clients and the web subscriber hit this API
	// from arbitrary origins.
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Session issuance
	auth := router.Group("/auth")
	{
		auth.POST("/apple", authHandler.CreateAppleSession)
		auth.POST("/dev", authHandler.CreateDevSession)
	}

	// Meal detail and image are publicly readable
	router.GET("/meals/:id", mealHandler.GetMeal)
	router.GET("/meals/:id/image", mealHandler.GetMealImage)

	// Everything else requires a session
	protected := router.Group("")
	protected.Use(middleware.AuthMiddleware(validator))
	{
		protected.POST("/meals", mealHandler.SubmitMeal)
		protected.POST("/meals/feedback", mealHandler.SubmitFeedback)
		protected.GET("/meals/sync", mealHandler.SyncAnalyses)
		protected.DELETE("/meals/:id", mealHandler.DeleteMeal)
		protected.GET("/ws", wsHandler.Subscribe)
	}

	return router
}
