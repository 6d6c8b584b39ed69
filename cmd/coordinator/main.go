package main

import (
	"log"

	"github.com/mossy-p/rendezvous/config"
	"github.com/mossy-p/rendezvous/internal/calls"
	"github.com/mossy-p/rendezvous/internal/handlers"
	"github.com/mossy-p/rendezvous/internal/metrics"
	"github.com/mossy-p/rendezvous/internal/redis"
	"github.com/mossy-p/rendezvous/internal/registry"
	"github.com/mossy-p/rendezvous/internal/router"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Presence mirror is best effort: the in-memory registry is
	// authoritative, so a missing Redis only disables the mirror
	var mirror *redis.PresenceMirror
	if client, err := redis.Connect(cfg.Redis); err != nil {
		log.Printf("Presence mirror disabled: %v", err)
	} else {
		mirror = redis.NewPresenceMirror(client)
		mirror.Reset()
		defer mirror.Close()
		log.Println("Redis connection established")
	}

	// Wire the coordinator: one registry, one call table, one router
	reg := registry.New()
	table := calls.NewTable(cfg.CallTimeout)
	rt := router.New(reg, table, metrics.New(), mirror)

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.Default()

	// Global CORS middleware (runs before routing)
	engine.Use(handlers.OriginFilter(cfg.AllowedOrigins))

	// Health check endpoint
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Directory of currently registered identifiers
	engine.GET("/users", handlers.Presence(reg))

	// Prometheus metrics
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket control channel
	engine.GET("/ws", handlers.Signaling(rt))

	// Start server
	log.Printf("Starting call coordinator on port %s", cfg.Port)
	if err := engine.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
