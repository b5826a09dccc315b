package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/simcore/internal/observability/context"
)

// Identity arrives in headers set by the upstream gateway.
const (
	HeaderUserID = "X-User-ID"
	HeaderActor  = "X-Actor"

	contextUserIDKey = "user_id"
	contextActorKey  = "actor"
)

// UserRequired resolves the order owner from X-User-ID.
func (s *Server) UserRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := snowflake.ParseString(raw)
		if err != nil || userID <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserIDKey, userID)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), "user", userID.String()))
		c.Next()
	}
}

// ActorRequired resolves the operator from X-Actor ("user:<id>" or a bare id).
func (s *Server) ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(HeaderActor))
		if actor == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !strings.HasPrefix(actor, "user:") {
			actor = "user:" + actor
		}

		c.Set(contextActorKey, actor)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), "operator", actor))
		c.Next()
	}
}

func (s *Server) authorizeAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), actor, strings.TrimSpace(object), strings.TrimSpace(action)); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func userIDFromContext(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(contextUserIDKey)
	if !ok {
		return 0, false
	}
	userID, ok := value.(snowflake.ID)
	if !ok || userID == 0 {
		return 0, false
	}
	return userID, true
}

func actorFromContext(c *gin.Context) (string, bool) {
	value, ok := c.Get(contextActorKey)
	if !ok {
		return "", false
	}
	actor, ok := value.(string)
	if !ok || actor == "" {
		return "", false
	}
	return actor, true
}
