package config

import (
	"log"
	"os"

	"github.com/golang-jwt/jwt/v4"
	"github.com/joho/godotenv"
)

// Global key so controllers/middleware can sign and verify tokens.
var JWT_KEY []byte

// Claims embedded in every access token. The app logs in by face, so the
// token carries everything the mobile client needs to render the session.
type JWTClaims struct {
	UserId   int64  `json:"userid"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	Voice    string `json:"voice"`
	Profile  string `json:"profile"`
	jwt.RegisteredClaims
}

// init runs automatically at startup.
func init() {
	// 1. Try to load .env (local development only). In production the
	// variables come from the environment directly, so a missing file is fine.
	if err := godotenv.Load(); err != nil {
		log.Println("Info: no .env file found, using system environment variables.")
	}

	// 2. Grab the signing key and refuse to start without it.
	key := os.Getenv("JWT_KEY")
	if key == "" {
		log.Fatal("FATAL ERROR: JWT_KEY not set! Add it to .env or the deployment variables.")
	}

	JWT_KEY = []byte(key)
}
