package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// DBPath is the SQLite database file path.
	DBPath string
	// DataDir is where receipt images and CSV exports are written.
	DataDir string
	// GeminiModel is the model name used for similarity checks,
	// categorization and receipt OCR.
	GeminiModel string
}

const (
	defaultDBPath      = "data/expensebot.db"
	defaultDataDir     = "data"
	defaultGeminiModel = "gemini-2.5-flash"
)

// Load reads configuration from environment variables.
// It looks for a .env file first; a missing file is not an error.
// GEMINI_API_KEY is read by the genai client itself and is not part of
// this struct.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		DBPath:      envOr("EXPENSEBOT_DB_PATH", defaultDBPath),
		DataDir:     envOr("EXPENSEBOT_DATA_DIR", defaultDataDir),
		GeminiModel: envOr("GEMINI_MODEL", defaultGeminiModel),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
