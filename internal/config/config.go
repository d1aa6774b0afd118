package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress      string
	PublicHost       string
	OpenAIAPIKey     string
	RealtimeURL      string
	TwilioAccountSID string
	TwilioAuthToken  string
	SupabaseURL      string
	SupabaseKey      string
	SupabaseBucket   string
	WebhookURL       string
	SummaryModel     string
	AdminToken       string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it: %v", err)
	}

	addr := getEnv("HTTP_ADDRESS", ":8080")

	openAIKey := os.Getenv("OPENAI_API_KEY")
	if openAIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set - speech backend will not work")
	}

	authToken := os.Getenv("TWILIO_AUTH_TOKEN")
	if authToken == "" {
		log.Println("Warning: TWILIO_AUTH_TOKEN not set - webhook signature validation will reject all requests")
	}

	webhookURL := os.Getenv("TRANSCRIPT_WEBHOOK_URL")
	if webhookURL == "" {
		log.Println("Warning: TRANSCRIPT_WEBHOOK_URL not set - transcripts will only be logged")
	}

	log.Printf("config: HTTP_ADDRESS=%s", addr)
	return Config{
		HTTPAddress:      addr,
		PublicHost:       os.Getenv("PUBLIC_HOST"),
		OpenAIAPIKey:     openAIKey,
		RealtimeURL:      getEnv("OPENAI_REALTIME_URL", "wss://api.openai.com/v1/realtime?model=gpt-4o-realtime-preview-2024-10-01"),
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  authToken,
		SupabaseURL:      os.Getenv("SUPABASE_URL"),
		SupabaseKey:      os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:   getEnv("SUPABASE_BUCKET", "call-recordings"),
		WebhookURL:       webhookURL,
		SummaryModel:     getEnv("SUMMARY_MODEL", "gpt-4o-mini"),
		AdminToken:       os.Getenv("ADMIN_TOKEN"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
