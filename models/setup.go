package models

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var DB *gorm.DB

func ConnectDatabase() {
	// Load .env for local runs; in production the variable is already set,
	// so ignore the error here.
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("FATAL ERROR: DATABASE_URL not set! Check .env or the deployment variables.")
	}

	db, err := gorm.Open(mysql.Open(dbURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}

	if err := db.AutoMigrate(
		&Member{},
		&Attendance{},
		&UserDevice{},
		&Message{},
		&GpsSetting{},
		&DistanceSetting{},
	); err != nil {
		log.Fatalf("Auto-migration failed: %v", err)
	}

	log.Println("Database connected.")
	DB = db
}
