package chat

import (
	"fmt"
	"math/rand"

	"github.com/gin-gonic/gin"
)

const (
	guestCookie  = "chat_name"
	cookieMaxAge = 365 * 24 * 60 * 60 // one year
)

// GuestName returns the device's persisted display name, generating
// "Guest <0-999>" on first contact and storing it in a long-lived cookie.
// It is not authenticated and carries no uniqueness guarantee.
func GuestName(c *gin.Context) string {
	if name, err := c.Cookie(guestCookie); err == nil && name != "" {
		return name
	}
	name := fmt.Sprintf("Guest %d", rand.Intn(1000))
	c.SetCookie(guestCookie, name, cookieMaxAge, "/", "", false, false)
	return name
}
