package message

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"TMIFACE/config"
	"TMIFACE/middleware"
	"TMIFACE/models"
	"TMIFACE/notification"
)

var notifier *notification.Service

func Setup(n *notification.Service) {
	notifier = n
}

// GetMessagesHandler returns the latest announcements, oldest first so the
// chat view renders top-down.
func GetMessagesHandler(c *gin.Context) {
	if !middleware.AdminCheck(c) {
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	var messages []models.Message
	if err := models.DB.Order("created_at DESC").Limit(limit).Find(&messages).Error; err != nil {
		c.JSON(http.StatusOK, gin.H{"error": err.Error(), "messages": []models.Message{}})
		return
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// CreateMessageHandler stores an announcement and pushes it to all devices.
func CreateMessageHandler(c *gin.Context) {
	if !middleware.AdminCheck(c) {
		return
	}
	claims := c.MustGet("claims").(config.JWTClaims)

	text := c.PostForm("message")
	if text == "" {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Message vide!"})
		return
	}

	row := models.Message{UserId: claims.UserId, Message: text}
	if err := models.DB.Create(&row).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create message"})
		return
	}

	notifier.Broadcast("TMI", row.Message, map[string]string{"screen": "Message"})
	c.JSON(http.StatusOK, row)
}
