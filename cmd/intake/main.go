package main

import (
	"flag"
	"log"

	"intake/internal/app"
)

// @title                       Intake API
// @version                     1.0
// @description                 Anonymous onboarding sessions with email verification.
// @BasePath                    /
// @securityDefinitions.apikey  SessionToken
// @in                          header
// @name                        Authorization
// @securityDefinitions.basic   BasicAuth
func main() {
	configPath := flag.String("config", "", "path to config.yaml (default $INTAKE_CONFIG or config/config.yaml)")
	flag.Parse()

	if err := app.Run(*configPath); err != nil {
		log.Fatalf("[main] %v", err)
	}
}
