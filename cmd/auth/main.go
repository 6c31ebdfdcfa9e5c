package main

import (
	"errors"
	"log"

	"github.com/aussiebroadwan/authcore/internal/auth/app"
)

func main() {
	cfg := app.LoadConfig()

	application, err := app.New(cfg)
	if errors.Is(err, app.ErrMissingSecret) {
		log.Fatalf("refusing to start: %v", err)
	}
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
