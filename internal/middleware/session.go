package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/response"
	"github.com/stemsi/examcore/internal/service"
)

// SessionValidator checks a token id against the user's live session.
type SessionValidator interface {
	ValidateSession(ctx context.Context, userID int, jti string) error
}

// CheckSingleSession validates the JWT's JTI against the active session in Redis.
// If the JTI doesn't match, the user logged in elsewhere or logged out.
func CheckSingleSession(sessions SessionValidator, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		err := sessions.ValidateSession(c.Request.Context(), claims.UserID, claims.ID)
		if errors.Is(err, service.ErrSessionInvalidated) {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
			return
		}
		if err != nil {
			log.Error().Err(err).Int("user_id", claims.UserID).Msg("Session lookup failed")
			response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
			return
		}

		c.Next()
	}
}
