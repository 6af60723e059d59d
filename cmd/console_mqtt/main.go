package main

import (
	"log"

	"github.com/relabs-tech/ballbot/internal/app"
	"github.com/relabs-tech/ballbot/internal/config"
)

func main() {
	log.Println("starting ballbot console (MQTT subscriber)")

	// Load configuration
	if err := config.InitGlobal("ballbot_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunConsoleMQTT(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
