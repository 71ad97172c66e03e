package settings

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm/clause"

	"TMIFACE/middleware"
	"TMIFACE/models"
)

// SetGpsHandler publishes the admin's current location as the geofence
// reference point.
func SetGpsHandler(c *gin.Context) {
	if !middleware.AdminCheck(c) {
		return
	}

	var latitude, longitude float64
	if _, err := fmt.Sscan(c.PostForm("latitude"), &latitude); err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Coordonnées non valides!"})
		return
	}
	if _, err := fmt.Sscan(c.PostForm("longitude"), &longitude); err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Coordonnées non valides!"})
		return
	}

	row := models.GpsSetting{Id: models.GpsSettingId, Latitude: latitude, Longitude: longitude}
	if err := models.DB.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Enregistrement impossible!"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "GPS enregistré avec succès"})
}

type distancePayload struct {
	Dist float64 `json:"dist"`
}

// UpdateDistanceHandler sets the maximum accepted distance in meters.
func UpdateDistanceHandler(c *gin.Context) {
	if !middleware.AdminCheck(c) {
		return
	}

	var payload distancePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Requête non valide!"})
		return
	}

	row := models.DistanceSetting{Id: models.DistanceSettingId, Dist: payload.Dist}
	if err := models.DB.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Enregistrement impossible!"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Distance de %.0fm enregistré avec succès", payload.Dist)})
}

func GetDistanceHandler(c *gin.Context) {
	if !middleware.AdminCheck(c) {
		return
	}
	var row models.DistanceSetting
	if err := models.DB.First(&row, "id = ?", models.DistanceSettingId).Error; err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Aucune distance définie!"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"distance": row.Dist})
}
