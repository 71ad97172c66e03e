package presence

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"TMIFACE/config"
	"TMIFACE/middleware"
	"TMIFACE/presence"
	"TMIFACE/session"
)

var (
	tracker *presence.Tracker
	day     *session.Session
)

func Setup(t *presence.Tracker, sess *session.Session) {
	tracker = t
	day = sess
}

// MyPresenceHandler returns the logged-in member's presence history.
func MyPresenceHandler(c *gin.Context) {
	if !middleware.AdminCheck(c) {
		return
	}
	claims := c.MustGet("claims").(config.JWTClaims)
	entries := tracker.ForMember(claims.UserId)
	if entries == nil {
		entries = []presence.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "success", "mypresence": entries})
}

// UserPresenceHandler returns another member's history (admin screen).
func UserPresenceHandler(c *gin.Context) {
	if !middleware.AdminCheck(c) {
		return
	}
	userId, err := strconv.ParseInt(c.PostForm("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Requête non valide!"})
		return
	}
	entries := tracker.ForMember(userId)
	if entries == nil {
		entries = []presence.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"userpresence": entries})
}

// UpdatePresenceHandler is the manual correction path: the admin flips an
// "absent" to "present" for a past session, which appends a ledger row and
// rebuilds the derived views.
func UpdatePresenceHandler(c *gin.Context) {
	if !middleware.AdminCheck(c) {
		return
	}
	userId, err := strconv.ParseInt(c.PostForm("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Requête non valide!"})
		return
	}
	emplacement := c.PostForm("emplacement")
	timestamp := c.PostForm("timestamp")

	ok, err := tracker.Correct(userId, emplacement, timestamp)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Correction impossible, réessayez svp!"})
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Séance introuvable!"})
		return
	}

	_ = tracker.Refresh()
	_ = day.Reload()

	c.JSON(http.StatusOK, gin.H{"message": "Succès"})
}

// EmplacementHandler returns today's locked emplacement, "aucun" when the
// day is still unlocked.
func EmplacementHandler(c *gin.Context) {
	if !middleware.AdminCheck(c) {
		return
	}
	value, err := day.Emplacement()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Erreur interne serveur"})
		return
	}
	if value == "" {
		value = "aucun"
	}
	c.JSON(http.StatusOK, gin.H{"sup_emplacement": value})
}
