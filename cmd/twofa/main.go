package main

import (
	"log"

	_ "github.com/joho/godotenv/autoload"

	"github.com/aussiebroadwan/twofa/internal/twofa/app"
)

func main() {
	cfg := app.LoadConfig()

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
