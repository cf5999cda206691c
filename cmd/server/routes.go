package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fidelio-pos/config"
	"fidelio-pos/internal/database"
	"fidelio-pos/internal/gateway/middleware"
	"fidelio-pos/internal/services/loyalty/handler"
	"fidelio-pos/internal/utils"
)

func main() {
	cfg := config.LoadConfig()
	utils.SetSecret(cfg.Auth.JWTSecret)

	db, err := database.NewConnection(cfg.DB.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.MigrateLoyaltyDB(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	redisClient := config.NewRedisClient(cfg.Redis)

	loyaltyHandler := handler.NewLoyaltyHandler(db, redisClient)

	r := gin.Default()

	r.Use(middleware.CORS())
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.RateLimit(cfg.RateLimit))

	// --- Public API Group ---
	public := r.Group("/api/v1")
	{
		auth := public.Group("/auth")
		{
			auth.POST("/login", loginHandler(cfg.Auth))
		}
	}

	// --- Protected API Group ---
	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth())
	{
		loyaltyGroup := protected.Group("/loyalty")
		{
			loyaltyGroup.POST("/use-code", loyaltyHandler.UseCode)
			loyaltyGroup.GET("/card-partner", loyaltyHandler.CardPartnerByCode)
			loyaltyGroup.GET("/card", loyaltyHandler.GetCard)
			loyaltyGroup.GET("/session-data", loyaltyHandler.SessionData)
			loyaltyGroup.POST("/vouchers", loyaltyHandler.IssueVoucher)
			loyaltyGroup.POST("/finalize", loyaltyHandler.FinalizeOrder)
			loyaltyGroup.POST("/provisional", loyaltyHandler.UploadProvisional)
			loyaltyGroup.GET("/status/:ref", loyaltyHandler.Status)
		}
	}

	r.GET("/health", healthCheckHandler())

	port := ":8080"
	log.Printf("Starting server on port %s", port)
	if err := r.Run(port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

type loginRequest struct {
	TerminalID string `json:"terminal_id" binding:"required"`
	Cashier    string `json:"cashier" binding:"required"`
	AccessCode string `json:"access_code" binding:"required"`
}

func loginHandler(auth config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "Invalid request format",
			})
			return
		}

		if auth.AccessCode == "" || req.AccessCode != auth.AccessCode {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Invalid access code",
			})
			return
		}

		token, exp, err := utils.GenerateToken(req.TerminalID, req.Cashier, auth.TokenTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "Failed to generate token",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			"message":    "Login successful",
			"token":      token,
			"expires_at": exp,
		})
	}
}

func healthCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"message":   "Server is running",
			"timestamp": time.Now(),
		})
	}
}
