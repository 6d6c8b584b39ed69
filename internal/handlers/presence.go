package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/rendezvous/internal/registry"
)

// Presence returns the directory handler listing all registered
// identifiers in registration order. Filtering out the requester's own
// identifier is the caller's concern, not the coordinator's.
func Presence(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"users": reg.List()})
	}
}
