package main

import (
	"log"

	"github.com/joho/godotenv"

	"torii/cmd/internal/app"
)

func main() {
	// Best effort; a missing .env is fine outside local development.
	_ = godotenv.Load()

	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
