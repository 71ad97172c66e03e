package face

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	xdraw "golang.org/x/image/draw"

	"TMIFACE/config"
	"TMIFACE/faces"
	"TMIFACE/helper"
	"TMIFACE/middleware"
	"TMIFACE/models"
	"TMIFACE/presence"
	"TMIFACE/recognition"
	"TMIFACE/session"
)

// Wired from main at startup.
var (
	store           *faces.Store
	detector        recognition.Detector
	pipe            *recognition.Pipeline
	day             *session.Session
	tracker         *presence.Tracker
	requireLiveness bool
)

func Setup(s *faces.Store, d recognition.Detector, p *recognition.Pipeline, sess *session.Session, t *presence.Tracker, liveness bool) {
	store = s
	detector = d
	pipe = p
	day = sess
	tracker = t
	requireLiveness = liveness
}

// readImageFile pulls the uploaded file and decodes it. A decode failure is
// an input error, not a server error.
func readImageFile(c *gin.Context, field string) ([]byte, image.Image, bool) {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		return nil, nil, false
	}
	f, err := fileHeader.Open()
	if err != nil {
		return nil, nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, false
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data, nil, false
	}
	return data, img, true
}

// RegisterFaceHandler enrolls a new member from a single-face photo.
func RegisterFaceHandler(c *gin.Context) {
	if !middleware.AdminCheck(c) {
		return
	}

	name := strings.TrimSpace(c.PostForm("name"))
	voice := c.PostForm("voice")
	if name == "" {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Nom obligatoire!"})
		return
	}

	// 1. Fast path: label already enrolled.
	if store.Has(name) {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": name + " déjà pris!"})
		return
	}

	// 2. Decode the upload.
	data, img, ok := readImageFile(c, "file")
	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Image non valide!"})
		return
	}

	// 3. Exactly one face required for enrollment.
	dets, err := detector.Detect(img)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Service de détection indisponible, réessayez svp!"})
		return
	}
	if len(dets) == 0 {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Aucun visage détecté!"})
		return
	}
	if len(dets) > 1 {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Trop de visages détectés!"})
		return
	}

	// 4. The same face must not already exist under another name.
	if matched, _ := store.Match(dets[0].Embedding, 0); matched != "" {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Visage déjà existant avec le prénom " + matched + "!"})
		return
	}

	// 5. Persist image + embedding, then the member row.
	if err := store.SaveImage(name, data); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Enregistrement de la photo impossible!"})
		return
	}
	if err := store.Put(name, dets[0].Embedding); err != nil {
		store.Remove(name)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Enregistrement du visage impossible!"})
		return
	}
	member := models.Member{Username: name, Voice: voice}
	if err := models.DB.Create(&member).Error; err != nil {
		store.Remove(name)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Enregistrement du membre impossible!"})
		return
	}

	// If this fails the new member still shows up on the next scheduled refresh.
	_ = tracker.Refresh()

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": name + " ajouté avec succès!"})
}

// RecognizeHandler marks attendance from a photo: geofence, then the
// recognition pipeline.
func RecognizeHandler(c *gin.Context) {
	if !middleware.AdminCheck(c) {
		return
	}

	emplacement := c.PostForm("emplacement")
	var latitude, longitude float64
	if _, err := fmt.Sscan(c.PostForm("latitude"), &latitude); err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Coordonnées non valides!"})
		return
	}
	if _, err := fmt.Sscan(c.PostForm("longitude"), &longitude); err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Coordonnées non valides!"})
		return
	}

	// 1. Geofence against the admin-published location.
	var gps models.GpsSetting
	if err := models.DB.First(&gps, "id = ?", models.GpsSettingId).Error; err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Aucun GPS activé par l'ADMIN aujourd'hui!"})
		return
	}
	var maxDist models.DistanceSetting
	if err := models.DB.First(&maxDist, "id = ?", models.DistanceSettingId).Error; err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Aucune distance définie par l'ADMIN!"})
		return
	}
	distance := helper.Geolocation(gps.Latitude, gps.Longitude, latitude, longitude)
	if distance > maxDist.Dist {
		c.JSON(http.StatusOK, gin.H{
			"status":  "error",
			"message": fmt.Sprintf("+ de %.0fm inacceptable: %.0fm!", maxDist.Dist, distance),
		})
		return
	}

	// 2. Decode and run the pipeline.
	_, img, ok := readImageFile(c, "file")
	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Image non valide!"})
		return
	}

	result, err := pipe.Recognize(img, emplacement, requireLiveness)
	if err != nil {
		// Transient: the mark did not happen, the client may retry as is.
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Erreur interne serveur, réessayez svp!"})
		return
	}

	switch result.Outcome {
	case recognition.OutcomeNoFace:
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Aucun visage détecté!"})
	case recognition.OutcomeSpoof:
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Centrez-vous bien pour éviter toute fraude!"})
	case recognition.OutcomeLocationMismatch:
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Acceptable: " + result.LockedEmplacement})
	case recognition.OutcomeNoMatch:
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Aucun visage reconnu!"})
	case recognition.OutcomeMatched:
		c.JSON(http.StatusOK, gin.H{
			"status":         "success",
			"matches":        result.Matches,
			"newly_marked":   emptyIfNil(result.NewlyMarked),
			"already_marked": emptyIfNil(result.AlreadyMarked),
			"user_profile":   profilesFor(result.Matches),
		})
	}
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// profilesFor returns username+profile pairs for the matched members, the
// app shows their avatars on the result screen.
func profilesFor(usernames []string) []gin.H {
	out := make([]gin.H, 0, len(usernames))
	if len(usernames) == 0 {
		return out
	}
	var members []models.Member
	if err := models.DB.Where("username IN ?", usernames).Find(&members).Error; err != nil {
		return out
	}
	for _, m := range members {
		out = append(out, gin.H{"username": m.Username, "profile": m.Profile})
	}
	return out
}

// UserPhotoHandler serves the logged-in member's face photo.
func UserPhotoHandler(c *gin.Context) {
	if !middleware.AdminCheck(c) {
		return
	}
	claims := c.MustGet("claims").(config.JWTClaims)

	path := store.ImagePath(claims.Username)
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.File(path)
}

// UpdateUserPhotoHandler replaces the member's photo with a 200x200 JPEG.
// The source image changing also invalidates the embedding cache, so the
// next reload recomputes the member's vector from the new photo.
func UpdateUserPhotoHandler(c *gin.Context) {
	if !middleware.AdminCheck(c) {
		return
	}
	claims := c.MustGet("claims").(config.JWTClaims)

	data, img, ok := readImageFile(c, "file")
	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Image non valide!"})
		return
	}

	resized := image.NewRGBA(image.Rect(0, 0, 200, 200))
	xdraw.CatmullRom.Scale(resized, resized.Bounds(), img, img.Bounds(), xdraw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 100}); err != nil {
		// Resize failed, keep the original upload.
		buf = *bytes.NewBuffer(data)
	}
	if err := store.SaveImage(claims.Username, buf.Bytes()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Enregistrement de la photo impossible!"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Photo de profil mise à jour avec succès"})
}
