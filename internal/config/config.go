package config

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration.
type Config struct {
	Port       string
	APIBaseURL string
	APIToken   string

	STTMethod        string
	GenerationMethod string
	TTSMethod        string

	TargetLang       string
	DictionarySource string
}

// Load parses environment variables into Config and validates required
// values. A .env file is read first when present.
func Load() (Config, error) {
	// Best-effort; production deployments set real env vars.
	_ = godotenv.Load()

	cfg := Config{
		Port:             getEnv("PORT", "8080"),
		APIBaseURL:       strings.TrimRight(os.Getenv("API_BASE_URL"), "/"),
		APIToken:         os.Getenv("API_TOKEN"),
		STTMethod:        getEnv("STT_METHOD", "whisper"),
		GenerationMethod: getEnv("GENERATION_METHOD", "mistral"),
		TTSMethod:        getEnv("TTS_METHOD", "gtts"),
		TargetLang:       getEnv("TARGET_LANG", "en"),
		DictionarySource: getEnv("DICTIONARY_SOURCE", "wiktionary"),
	}

	if cfg.APIBaseURL == "" {
		return Config{}, errors.New("API_BASE_URL is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
