package router

import (
	"github.com/gin-gonic/gin"
	"github.com/mlee/checkline-backend/config"
	"github.com/mlee/checkline-backend/internal/app/controller"
	"github.com/mlee/checkline-backend/internal/middleware"
)

type Router struct {
	authController    *controller.AuthController
	cartController    *controller.CartController
	queueController   *controller.QueueController
	paymentController *controller.PaymentController
	productController *controller.ProductController
	loyaltyController *controller.LoyaltyController
	auditController   *controller.AuditController
	feedController    *controller.FeedController
	authMiddleware    *middleware.AuthMiddleware
	config            *config.Config
}

func NewRouter(
	authController *controller.AuthController,
	cartController *controller.CartController,
	queueController *controller.QueueController,
	paymentController *controller.PaymentController,
	productController *controller.ProductController,
	loyaltyController *controller.LoyaltyController,
	auditController *controller.AuditController,
	feedController *controller.FeedController,
	authMiddleware *middleware.AuthMiddleware,
	cfg *config.Config,
) *Router {
	return &Router{
		authController:    authController,
		cartController:    cartController,
		queueController:   queueController,
		paymentController: paymentController,
		productController: productController,
		loyaltyController: loyaltyController,
		auditController:   auditController,
		feedController:    feedController,
		authMiddleware:    authMiddleware,
		config:            cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	gin.SetMode(r.config.Server.GinMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware())
	router.Use(corsMiddleware(r.config.CORS.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"message": "CHECKLINE API is running",
		})
	})

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/pair", r.authController.PairDevice)
		}

		carts := v1.Group("/carts")
		carts.Use(r.authMiddleware.Authenticate())
		{
			carts.POST("/resolve", r.cartController.ResolveCart)
			carts.GET("/:id", r.cartController.GetCart)
			carts.POST("/:id/items", r.cartController.AddItem)
			carts.PATCH("/:id/items/:itemID", r.cartController.UpdateItem)
			carts.DELETE("/:id/items/:itemID", r.cartController.RemoveItem)
			carts.DELETE("/:id/items", r.cartController.ClearCart)
			carts.POST("/:id/abandon", r.cartController.AbandonCart)
		}

		queue := v1.Group("/queue")
		queue.Use(r.authMiddleware.Authenticate())
		{
			queue.POST("", r.queueController.Enqueue)
			queue.GET("", r.queueController.ListQueue)
			queue.GET("/carts/:cartID", r.queueController.GetPosition)
			queue.DELETE("/carts/:cartID", r.queueController.Dequeue)
		}

		intents := v1.Group("/intents")
		{
			// Intent ids are opaque capabilities; status polls need no token.
			intents.GET("/:id", r.paymentController.GetIntent)

			intents.POST("", r.authMiddleware.Authenticate(), r.paymentController.CreateIntent)
			intents.POST("/:id/process", r.authMiddleware.Authenticate(), r.paymentController.BeginProcessing)
			intents.POST("/:id/complete", r.authMiddleware.Authenticate(), r.paymentController.CompleteIntent)
			intents.POST("/:id/cancel", r.authMiddleware.Authenticate(), r.paymentController.CancelIntent)
			intents.POST("/:id/fail", r.authMiddleware.Authenticate(), r.paymentController.FailIntent)
		}

		products := v1.Group("/products")
		products.Use(r.authMiddleware.Authenticate())
		{
			products.GET("", r.productController.GetProducts)
			products.GET("/:id", r.productController.GetProduct)
			products.GET("/:id/availability", r.productController.GetAvailability)
		}

		inventory := v1.Group("/inventory")
		inventory.Use(r.authMiddleware.Authenticate())
		{
			inventory.POST("/:recordID/adjust",
				r.authMiddleware.RequireRole(middleware.RoleManager),
				r.productController.AdjustStock,
			)
		}

		customers := v1.Group("/customers")
		customers.Use(r.authMiddleware.Authenticate())
		{
			customers.GET("/:id/loyalty", r.loyaltyController.GetHistory)
			customers.GET("/:id/loyalty/balance", r.loyaltyController.GetBalance)
			customers.POST("/:id/loyalty/redeem", r.loyaltyController.Redeem)
		}

		audit := v1.Group("/audit")
		audit.Use(r.authMiddleware.Authenticate())
		audit.Use(r.authMiddleware.RequireRole(middleware.RoleManager))
		{
			audit.GET("/deltas", r.auditController.ListDeltas)
			audit.GET("/orders", r.auditController.ListOrders)
			audit.GET("/export", r.auditController.ExportLedger)
			audit.POST("/archive", r.auditController.ArchiveLedger)
		}

		v1.GET("/feed", r.authMiddleware.Authenticate(), r.feedController.Subscribe)
	}

	return router
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin || allowedOrigin == "*" {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
