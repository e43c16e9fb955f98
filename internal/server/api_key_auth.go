package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/signalway/internal/observability/context"
	"gorm.io/gorm"
)

// APIKey is an operator credential. Only the SHA-256 of the key is
// stored; the plaintext exists once, at issuance.
type APIKey struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	KeyHash   string       `gorm:"type:text;not null;uniqueIndex" json:"-"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	RevokedAt *time.Time   `gorm:"" json:"revoked_at,omitempty"`
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "api_keys" }

// HashAPIKey derives the stored digest for a plaintext key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// apiKeyAuth authenticates requests via the X-API-Key header.
func apiKeyAuth(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := strings.TrimSpace(c.GetHeader("X-API-Key"))
		if presented == "" {
			abortWithError(c, errUnauthorized)
			return
		}

		digest := HashAPIKey(presented)
		var key APIKey
		err := db.WithContext(c.Request.Context()).
			Where("key_hash = ? AND revoked_at IS NULL", digest).
			First(&key).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				abortWithError(c, errUnauthorized)
				return
			}
			abortWithError(c, errInternal)
			return
		}
		if subtle.ConstantTimeCompare([]byte(digest), []byte(key.KeyHash)) != 1 {
			abortWithError(c, errUnauthorized)
			return
		}

		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), "api_key", key.Name))
		c.Set("api_key_name", key.Name)
		c.Next()
	}
}
