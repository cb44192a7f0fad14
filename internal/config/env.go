package config

import "os"

// OpenAIKey returns OPENAI_API_KEY.
func OpenAIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

// GoogleAPIKey returns GOOGLE_API_KEY.
func GoogleAPIKey() string {
	return os.Getenv("GOOGLE_API_KEY")
}

// GoogleCredentialsFile returns GOOGLE_APPLICATION_CREDENTIALS.
func GoogleCredentialsFile() string {
	return os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
}

// Env returns the environment variable key, or fallback when unset.
func Env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
