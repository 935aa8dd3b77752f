package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ownerContextKey = "owner_id"

// IdentityConfig конфигурация для API key аутентификации
type IdentityConfig struct {
	// Keys карта API-ключей к идентификатору владельца
	Keys map[string]string
	// HeaderName имя заголовка для API ключа (по умолчанию: X-API-Key)
	HeaderName string
}

// Identity middleware сопоставляет API-ключ с идентификатором владельца.
// Это вся «аутентификация» ядра: выдача самих ключей — забота внешнего
// сервиса, сюда приходит только готовая карта.
type Identity struct {
	config IdentityConfig
}

// NewIdentity создаёт новый identity middleware
func NewIdentity(config IdentityConfig) *Identity {
	if config.HeaderName == "" {
		config.HeaderName = "X-API-Key"
	}
	return &Identity{config: config}
}

// Optional резолвит владельца, если ключ передан, и пропускает анонимов.
func (id *Identity) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if owner, ok := id.resolve(c); ok {
			c.Set(ownerContextKey, owner)
		}
		c.Next()
	}
}

// Required отклоняет запросы без валидного ключа.
func (id *Identity) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := id.resolve(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Требуется API ключ. Передайте его через заголовок X-API-Key или Authorization: Bearer",
			})
			c.Abort()
			return
		}
		c.Set(ownerContextKey, owner)
		c.Next()
	}
}

// resolve достаёт ключ из запроса и сравнивает с известными за константное время.
func (id *Identity) resolve(c *gin.Context) (string, bool) {
	apiKey := c.GetHeader(id.config.HeaderName)

	// Также проверяем заголовок Authorization с Bearer схемой
	if apiKey == "" {
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			apiKey = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}

	if apiKey == "" {
		return "", false
	}

	for validKey, owner := range id.config.Keys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(validKey)) == 1 {
			return owner, true
		}
	}

	return "", false
}

// OwnerFromContext извлекает идентификатор владельца из контекста
func OwnerFromContext(c *gin.Context) (string, bool) {
	v, exists := c.Get(ownerContextKey)
	if !exists {
		return "", false
	}
	owner, ok := v.(string)
	return owner, ok && owner != ""
}
