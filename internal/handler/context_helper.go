package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/immersup/immersup-api/internal/middleware"
	"github.com/immersup/immersup-api/internal/models"
)

// actorReader resolves the authenticated account behind the JWT claims.
type actorReader interface {
	FindByID(ctx context.Context, id string) (*models.ImmersionUser, error)
}

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func loadActor(c *gin.Context, users actorReader) *models.ImmersionUser {
	claims := claimsFromContext(c)
	if claims == nil {
		return nil
	}
	actor, err := users.FindByID(c.Request.Context(), claims.UserID)
	if err != nil {
		return nil
	}
	return actor
}
