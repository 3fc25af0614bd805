package httpapi

import (
	"strings"

	"github.com/gin-gonic/gin"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/catalog"
	"github.com/goliatone/go-settings/pkg/client"
)

const identityKey = "settings_identity"

// identityMiddleware reads the caller from the identity headers set by the
// fronting auth layer.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := settings.Identity{
			AccountID: strings.TrimSpace(c.GetHeader(client.HeaderAccountID)),
			RoleCode:  strings.TrimSpace(c.GetHeader(client.HeaderRoleCode)),
			RoleKey:   strings.TrimSpace(c.GetHeader(client.HeaderRoleKey)),
		}
		c.Set(identityKey, identity)
		if identity.AccountID != "" {
			c.Request = c.Request.WithContext(catalog.WithActor(c.Request.Context(), identity.AccountID))
		}
		c.Next()
	}
}

func identityFrom(c *gin.Context) settings.Identity {
	if value, ok := c.Get(identityKey); ok {
		if identity, ok := value.(settings.Identity); ok {
			return identity
		}
	}
	return settings.Identity{}
}
