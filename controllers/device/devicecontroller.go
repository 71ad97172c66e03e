package device

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"TMIFACE/config"
	"TMIFACE/middleware"
	"TMIFACE/notification"
)

var notifier *notification.Service

func Setup(n *notification.Service) {
	notifier = n
}

// RegisterDeviceHandler stores an Expo push token for the logged-in member.
func RegisterDeviceHandler(c *gin.Context) {
	if !middleware.AdminCheck(c) {
		return
	}
	claims := c.MustGet("claims").(config.JWTClaims)

	token := c.PostForm("expo_push_token")
	deviceType := c.PostForm("device_type")
	deviceName := c.PostForm("device_name")
	if token == "" || deviceType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expo_push_token et device_type obligatoires"})
		return
	}

	if _, err := notifier.RegisterDevice(claims.UserId, token, deviceType, deviceName, uuid.NewString()); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Appareil enregistré avec succès"})
}

// UnregisterDeviceHandler deactivates the token on logout.
func UnregisterDeviceHandler(c *gin.Context) {
	if !middleware.AdminCheck(c) {
		return
	}
	claims := c.MustGet("claims").(config.JWTClaims)

	token := c.PostForm("expo_push_token")
	if err := notifier.UnregisterDevice(claims.UserId, token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Device unregistered successfully"})
}
