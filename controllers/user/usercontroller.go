package user

import (
	"bytes"
	"errors"
	"image"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"TMIFACE/config"
	"TMIFACE/faces"
	"TMIFACE/middleware"
	"TMIFACE/models"
	"TMIFACE/presence"
	"TMIFACE/recognition"
	"TMIFACE/session"
)

var (
	store    *faces.Store
	detector recognition.Detector
	day      *session.Session
	tracker  *presence.Tracker
)

func Setup(s *faces.Store, d recognition.Detector, sess *session.Session, t *presence.Tracker) {
	store = s
	detector = d
	day = sess
	tracker = t
}

// createAccessToken signs the member's claims. Tokens do not expire, the
// app holds one until the next face login.
func createAccessToken(m models.Member) (string, error) {
	claims := config.JWTClaims{
		UserId:   m.Id,
		Username: m.Username,
		IsAdmin:  m.IsAdmin,
		Voice:    m.Voice,
		Profile:  m.Profile,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(config.JWT_KEY)
}

// LoginHandler authenticates by face: one face in the photo, matched
// against the enrolled embeddings.
func LoginHandler(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Image non valide!"})
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Image non valide!"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Image non valide!"})
		return
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Image non valide!"})
		return
	}

	dets, err := detector.Detect(img)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Service de détection indisponible, réessayez svp!"})
		return
	}
	if len(dets) == 0 {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Aucun visage détecté!"})
		return
	}
	if len(dets) != 1 {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Trop de visages détectés!"})
		return
	}

	name, _ := store.Match(dets[0].Embedding, 0)
	if name == "" {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Merci de vous inscrire auprès de l'ADMIN!"})
		return
	}

	var member models.Member
	if err := models.DB.Where("username = ?", name).First(&member).Error; err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Utilisateur introuvable dans la base de données!"})
		return
	}

	token, err := createAccessToken(member)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Erreur interne serveur"})
		return
	}

	if member.IsAdmin {
		c.JSON(http.StatusOK, gin.H{
			"status":       "successadmin",
			"message":      "Bienvenue ADMIN " + name + "!",
			"access_token": token,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "successmember",
		"message":      "Bienvenue " + name + "!",
		"access_token": token,
	})
}

type searchPayload struct {
	Name string `json:"name"`
}

func SearchUserHandler(c *gin.Context) {
	if !middleware.AdminCheck(c) {
		return
	}

	var payload searchPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusOK, gin.H{"user": nil})
		return
	}
	name := strings.TrimSpace(payload.Name)
	if len(name) < 2 {
		c.JSON(http.StatusOK, gin.H{"user": nil})
		return
	}

	var results []models.Member
	if err := models.DB.
		Select("id", "username", "is_admin", "voice").
		Where("LOWER(username) LIKE ?", "%"+strings.ToLower(name)+"%").
		Find(&results).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Recherche impossible"})
		return
	}
	c.JSON(http.StatusOK, results)
}

type deletePayload struct {
	Id   int64  `json:"id"`
	Name string `json:"name"`
}

// DeleteUserHandler removes the member row plus the face image and cached
// embedding. Today's already-written ledger rows stay, history is
// append-only.
func DeleteUserHandler(c *gin.Context) {
	if !middleware.AdminCheck(c) {
		return
	}

	var payload deletePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Requête non valide!"})
		return
	}

	if err := models.DB.Delete(&models.Member{}, payload.Id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Suppression impossible!"})
		return
	}
	store.Remove(payload.Name)

	_ = tracker.Refresh()
	_ = day.Reload()

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": payload.Name + " supprimé avec succès!"})
}

type updatePayload struct {
	Id      int64  `json:"id"`
	Name    string `json:"name"`
	Voice   string `json:"voice"`
	IsAdmin bool   `json:"is_admin"`
}

func UpdateUserHandler(c *gin.Context) {
	if !middleware.AdminCheck(c) {
		return
	}

	var payload updatePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Requête non valide!"})
		return
	}

	var current models.Member
	if err := models.DB.First(&current, payload.Id).Error; err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Utilisateur introuvable!"})
		return
	}

	if payload.Name == current.Username && payload.Voice == current.Voice && payload.IsAdmin == current.IsAdmin {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Aucun changement détecté!"})
		return
	}

	if payload.Name != current.Username {
		var count int64
		models.DB.Model(&models.Member{}).Where("username = ?", payload.Name).Count(&count)
		if count > 0 {
			c.JSON(http.StatusOK, gin.H{"status": "error", "message": payload.Name + " est déjà pris!"})
			return
		}
		// Move image + embedding cache first; the DB rename follows only
		// when the files moved.
		if err := store.Rename(current.Username, payload.Name); err != nil {
			if errors.Is(err, faces.ErrLabelTaken) {
				c.JSON(http.StatusOK, gin.H{"status": "error", "message": payload.Name + " est déjà pris!"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Renommage impossible!"})
			return
		}
		if err := models.DB.Model(&current).Update("username", payload.Name).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Mise à jour impossible!"})
			return
		}
	}

	if payload.Voice != current.Voice {
		models.DB.Model(&current).Update("voice", payload.Voice)
	}
	if payload.IsAdmin != current.IsAdmin {
		models.DB.Model(&current).Update("is_admin", payload.IsAdmin)
	}

	_ = tracker.Refresh()
	_ = day.Reload()

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": payload.Name + " mis à jour avec succès!"})
}

func AllUsersHandler(c *gin.Context) {
	if !middleware.AdminCheck(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"allusers": tracker.Members()})
}
