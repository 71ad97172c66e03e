package main

import (
	"log"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron"

	"TMIFACE/config"
	devicectrl "TMIFACE/controllers/device"
	facectrl "TMIFACE/controllers/face"
	messagectrl "TMIFACE/controllers/message"
	presencectrl "TMIFACE/controllers/presence"
	settingsctrl "TMIFACE/controllers/settings"
	userctrl "TMIFACE/controllers/user"
	"TMIFACE/faces"
	"TMIFACE/liveness"
	"TMIFACE/mapi"
	"TMIFACE/middleware"
	"TMIFACE/models"
	"TMIFACE/notification"
	"TMIFACE/presence"
	"TMIFACE/recognition"
	"TMIFACE/session"
)

func main() {
	models.ConnectDatabase()
	loc := config.OrgTimezone()

	// External models run in the inference sidecar.
	detector := recognition.NewHTTPDetector(config.Getenv("DETECTOR_URL", "http://127.0.0.1:8001"))
	scorer := liveness.NewHTTPScorer(config.Getenv("LIVENESS_URL", "http://127.0.0.1:8002"))
	gate := liveness.NewGate(scorer)

	store, err := faces.NewStore(
		config.Getenv("FACES_DIR", "known_faces"),
		config.Getenv("EMBEDDINGS_DIR", "known_faces_embeddings"),
		recognition.FirstFace{Detector: detector},
	)
	if err != nil {
		log.Fatalf("Embedding store init failed: %v", err)
	}
	if err := store.Load(); err != nil {
		log.Printf("Warning: initial embedding load: %v", err)
	}

	// SMS account check at startup so a misconfigured gateway surfaces in
	// the logs instead of on the first admin alert.
	if os.Getenv("MAPI_USERNAME") != "" {
		go func() {
			sms := mapi.New()
			login, err := sms.Login()
			if err != nil {
				log.Printf("Warning: mapi login: %v", err)
				return
			}
			if offer, err := sms.Available(login.Token); err == nil {
				log.Printf("mapi: %d SMS credits available", offer.Available)
			}
		}()
	}

	notifier := notification.New(models.DB)
	day := session.New(&session.DBLedger{DB: models.DB}, notifier, loc)
	if err := day.Reload(); err != nil {
		log.Printf("Warning: initial attendance load: %v", err)
	}

	tracker := presence.NewTracker(models.DB, loc)
	if err := tracker.Refresh(); err != nil {
		log.Printf("Warning: initial presence load: %v", err)
	}

	requireLiveness := config.Getenv("REQUIRE_LIVENESS", "true") == "true"
	pipe := &recognition.Pipeline{
		Detector:       detector,
		Store:          store,
		Gate:           gate,
		Session:        day,
		UseScreenGuard: config.Getenv("USE_SCREEN_GUARD", "true") == "true",
	}

	facectrl.Setup(store, detector, pipe, day, tracker, requireLiveness)
	userctrl.Setup(store, detector, day, tracker)
	presencectrl.Setup(tracker, day)
	devicectrl.Setup(notifier)
	messagectrl.Setup(notifier)

	// Background refresh keeps the derived caches converging with the DB
	// even when rows are written out of band. Each step fails on its own;
	// a refresh error never touches request-serving state.
	scheduler := gocron.NewScheduler(loc)
	if _, err := scheduler.Every(5).Minutes().Do(func() {
		if err := store.Load(); err != nil {
			log.Printf("Refresh: embeddings: %v", err)
		}
		if err := day.Reload(); err != nil {
			log.Printf("Refresh: attendance day: %v", err)
		}
		if err := tracker.Refresh(); err != nil {
			log.Printf("Refresh: presence: %v", err)
		}
	}); err != nil {
		log.Fatalf("Scheduler setup failed: %v", err)
	}
	scheduler.StartAsync()

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{config.Getenv("CORS_ORIGIN", "https://api.tmiattendance.dpdns.org")},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH"},
		AllowHeaders:     []string{"*"},
		ExposeHeaders:    []string{"*"},
		AllowCredentials: true,
	}))

	// Public routes: face login and the token-in-query websocket.
	r.POST("/v2/login", userctrl.LoginHandler)
	r.GET("/ws/v2/recognize", facectrl.RecognizeStreamHandler)

	auth := r.Group("/", middleware.Auth())
	{
		auth.POST("/v2/register", facectrl.RegisterFaceHandler)
		auth.POST("/v2/recognize", facectrl.RecognizeHandler)
		auth.GET("/v2/userphoto", facectrl.UserPhotoHandler)
		auth.POST("/v2/userphoto", facectrl.UpdateUserPhotoHandler)

		auth.GET("/v2/allusers", userctrl.AllUsersHandler)
		auth.POST("/v2/search-user", userctrl.SearchUserHandler)
		auth.POST("/v2/delete-user", userctrl.DeleteUserHandler)
		auth.POST("/v2/update-user", userctrl.UpdateUserHandler)

		auth.GET("/v2/emplacement", presencectrl.EmplacementHandler)
		auth.GET("/v2/mypresence", presencectrl.MyPresenceHandler)
		auth.POST("/v2/userpresence", presencectrl.UserPresenceHandler)
		auth.POST("/v2/updatepresence", presencectrl.UpdatePresenceHandler)

		auth.POST("/v2/gps", settingsctrl.SetGpsHandler)
		auth.POST("/v2/update-dist", settingsctrl.UpdateDistanceHandler)
		auth.GET("/v2/get-dist", settingsctrl.GetDistanceHandler)

		auth.POST("/v2/register-device", devicectrl.RegisterDeviceHandler)
		auth.POST("/v2/unregister-device", devicectrl.UnregisterDeviceHandler)

		auth.GET("/messages", messagectrl.GetMessagesHandler)
		auth.POST("/messages", messagectrl.CreateMessageHandler)
	}

	port := config.Getenv("PORT", "8000")
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
