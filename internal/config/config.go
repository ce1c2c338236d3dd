package config

import (
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
)

type HTTPServer struct {
	Host string
	Port string
}

type Database struct {
	Folder      string
	RoomsFolder string
	CatalogFile string
}

type Logging struct {
	Level string
}

type Config struct {
	HTTP     HTTPServer
	Database Database
	Logging  Logging
}

const logtag = "[config]"

func Load() *Config {
	configPath := flag.String("config", "", "path env file")
	flag.Parse()

	if *configPath != "" {
		if err := godotenv.Load(*configPath); err != nil {
			log.Fatalf("%s err loading env from file : %v", logtag, err)
		}
		log.Printf("%s using env from : %s", logtag, *configPath)
	} else {
		log.Printf("%s using env from .env", logtag)
		_ = godotenv.Load()
	}

	return &Config{
		HTTP: HTTPServer{
			Host: envOr("HTTP_HOST", ""),
			Port: envOr("HTTP_PORT", "8080"),
		},
		Database: Database{
			Folder:      envOr("DATABASE_FOLDER", "data"),
			RoomsFolder: envOr("DATABASE_ROOMS_FOLDER", "rooms"),
			CatalogFile: envOr("DATABASE_CATALOG_FILE", "catalog.db"),
		},
		Logging: Logging{
			Level: envOr("LOG_LEVEL", "info"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
