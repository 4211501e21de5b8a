package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/kdimtricp/timelens/internal/api"
	"github.com/kdimtricp/timelens/internal/audio"
	"github.com/kdimtricp/timelens/internal/capture"
	"github.com/kdimtricp/timelens/internal/dedup"
	"github.com/kdimtricp/timelens/internal/store"
	"github.com/kdimtricp/timelens/internal/stream"
	"github.com/kdimtricp/timelens/internal/transcribe"
)

func main() {
	port := getEnv("PORT", "8080")

	// Database configuration
	dbType := getEnv("DB_TYPE", "sqlite")

	var dbConfig store.Config
	dbConfig.Type = dbType

	if dbType == "postgres" {
		dbConfig.Host = getEnv("DB_HOST", "localhost")
		dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
		if err != nil {
			log.Fatal("Invalid DB_PORT:", err)
		}
		dbConfig.Port = dbPort
		dbConfig.User = getEnv("DB_USER", "timelens")
		dbConfig.Password = getEnv("DB_PASSWORD", "timelens_dev")
		dbConfig.Name = getEnv("DB_NAME", "timelens")
	} else {
		dbConfig.SQLitePath = getEnv("DB_PATH", "./timelens.db")
	}

	db, err := store.NewDB(dbConfig)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer db.Close()

	threshold := 95.0
	if raw := os.Getenv("SIMILARITY_THRESHOLD"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			threshold = v
		}
	}
	deduplicator := dedup.New(threshold)

	maxSessions := 10
	if raw := os.Getenv("MAX_SESSIONS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			maxSessions = v
		}
	}

	sources := store.NewSourceRepo(db)
	frames := store.NewFrameRepo(db)
	transcriptions := store.NewTranscriptionRepo(db)

	transcriber := buildTranscriber()

	captureConfig := capture.DefaultConfig()
	if raw := os.Getenv("FRAME_INTERVAL_SECONDS"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			captureConfig.FrameIntervalSeconds = v
		}
	}
	if raw := os.Getenv("CHUNK_SECONDS"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			captureConfig.ChunkSeconds = v
		}
	}
	if raw := os.Getenv("OVERLAP_SECONDS"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			captureConfig.OverlapSeconds = v
		}
	}
	captureConfig.Language = os.Getenv("TRANSCRIBE_LANGUAGE")
	captureConfig.Model = getEnv("TRANSCRIBE_MODEL", "whisper-1")

	var pipeline *capture.Pipeline
	frameExtractor, err := capture.NewFrameExtractor()
	if err != nil {
		log.Printf("Warning: batch capture disabled: %v", err)
	} else {
		audioExtractor, err := audio.NewExtractor()
		if err != nil {
			log.Printf("Warning: batch capture disabled: %v", err)
		} else {
			pipeline = capture.NewPipeline(captureConfig, frameExtractor, audioExtractor,
				deduplicator, transcriber, sources, frames, transcriptions)
		}
	}

	app := &api.App{
		Sessions:       stream.NewManager(maxSessions, deduplicator, sources, frames),
		Dedup:          deduplicator,
		Sources:        sources,
		Frames:         frames,
		Transcriptions: transcriptions,
		Annotations:    store.NewAnnotationRepo(db),
		Timeline:       store.NewTimelineRepo(db),
		Pipeline:       pipeline,
		Jobs:           capture.NewJobRegistry(),
	}

	router := api.NewRouter(app)

	log.Printf("Server starting on port %s", port)
	log.Printf("Database type: %s", dbType)
	if dbType == "postgres" {
		log.Printf("Database connection: %s@%s:%d/%s", dbConfig.User, dbConfig.Host, dbConfig.Port, dbConfig.Name)
	} else {
		log.Printf("Database path: %s", dbConfig.SQLitePath)
	}
	log.Printf("Similarity threshold: %.1f, max sessions: %d", threshold, maxSessions)

	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatal(err)
	}
}

// buildTranscriber picks the transcription backend once at startup: the
// local speech daemon when STTD_HOST is set, otherwise the OpenAI
// Whisper API.
func buildTranscriber() transcribe.Transcriber {
	if host := os.Getenv("STTD_HOST"); host != "" {
		sttdPort, err := strconv.Atoi(getEnv("STTD_PORT", "8090"))
		if err != nil {
			log.Fatal("Invalid STTD_PORT:", err)
		}
		timeout := 2 * time.Minute
		if raw := os.Getenv("STTD_TIMEOUT_SECONDS"); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil {
				timeout = time.Duration(v) * time.Second
			}
		}
		client := transcribe.NewSTTDClient(host, sttdPort, timeout)
		if !client.HealthCheck(context.Background()) {
			log.Printf("Warning: speech daemon not reachable at %s:%d", host, sttdPort)
		}
		log.Printf("Using speech daemon at %s:%d", host, sttdPort)
		return client
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Printf("Warning: no transcription backend configured. Set STTD_HOST or OPENAI_API_KEY")
	}
	return transcribe.NewWhisperClient(apiKey, getEnv("TRANSCRIBE_MODEL", "whisper-1"))
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
