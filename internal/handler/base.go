package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CurrentUser returns the authenticated user's ID and role from the request
// context. It fails when the auth middleware did not run.
func CurrentUser(c *gin.Context) (uuid.UUID, string, error) {
	id, err := uuid.Parse(c.GetString("userID"))
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("missing or invalid user ID in context: %w", err)
	}
	return id, c.GetString("userRole"), nil
}
