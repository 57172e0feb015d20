package main

import (
	"log"

	"github.com/joho/godotenv"

	"formintel/cmd"
	"formintel/internal/config"
	"formintel/internal/logger"
)

func main() {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: no .env loaded: %v", err)
	}

	logCfg := logger.DefaultConfig()
	if cfg, err := config.Load(); err != nil {
		log.Printf("Warning: configuration incomplete, using default logging: %v", err)
	} else {
		logCfg = cfg.GetLoggerConfig()
	}
	if err := logger.Setup(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	l := logger.WithComponent("main")
	l.Debug().Str("log_level", logCfg.Level).Msg("Starting formintel")

	cmd.Execute()
}
