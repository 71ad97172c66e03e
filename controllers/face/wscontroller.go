package face

import (
	"bytes"
	"encoding/base64"
	"image"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"TMIFACE/middleware"
	"TMIFACE/recognition"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Auth runs on the token below, not on the Origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsFrame struct {
	Image       string `json:"image"` // base64 JPEG/PNG
	Emplacement string `json:"emplacement"`
}

// RecognizeStreamHandler is the live camera mode: one JSON frame in, one
// result out, until the client hangs up or a location mismatch ends the
// session. A dropped connection only stops future frames; a mark already
// in flight completes.
func RecognizeStreamHandler(c *gin.Context) {
	if _, err := middleware.ParseToken(c.Query("token")); err != nil {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			// Closed or broken connection, nothing to clean up.
			return
		}

		if frame.Image == "" || frame.Emplacement == "" {
			wsError(conn, "Image ou emplacement non défini!")
			continue
		}

		raw, err := base64.StdEncoding.DecodeString(frame.Image)
		if err != nil {
			wsError(conn, "Image non valide!")
			continue
		}
		img, _, err := image.Decode(bytes.NewReader(raw))
		if err != nil {
			wsError(conn, "Image non valide!")
			continue
		}

		result, err := pipe.Recognize(img, frame.Emplacement, requireLiveness)
		if err != nil {
			log.Printf("[WS] frame processing: %v", err)
			wsError(conn, "Erreur interne serveur, réessayez svp!")
			continue
		}

		if result.Outcome == recognition.OutcomeLocationMismatch {
			wsError(conn, "Acceptable: "+result.LockedEmplacement)
			return
		}

		if err := conn.WriteJSON(gin.H{
			"status":         "success",
			"users":          emptyIfNil(result.Matches),
			"newly_marked":   emptyIfNil(result.NewlyMarked),
			"already_marked": emptyIfNil(result.AlreadyMarked),
		}); err != nil {
			return
		}
	}
}

func wsError(conn *websocket.Conn, message string) {
	if err := conn.WriteJSON(gin.H{"status": "error", "message": message}); err != nil {
		log.Printf("[WS] write failed: %v", err)
	}
}
