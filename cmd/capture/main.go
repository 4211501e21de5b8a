package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/kdimtricp/timelens/internal/audio"
	"github.com/kdimtricp/timelens/internal/capture"
	"github.com/kdimtricp/timelens/internal/dedup"
	"github.com/kdimtricp/timelens/internal/store"
	"github.com/kdimtricp/timelens/internal/transcribe"
)

func main() {
	var (
		videoPath = flag.String("video", "", "Path to video file (name must be YYYY-MM-DD_HH-MM-SS.<ext>)")
		interval  = flag.Float64("interval", 5, "Seconds between sampled frames")
		chunk     = flag.Float64("chunk", 300, "Audio chunk duration in seconds")
		overlap   = flag.Float64("overlap", 2, "Audio chunk overlap in seconds")
		threshold = flag.Float64("threshold", 95.0, "Frame similarity threshold (0-100)")
	)
	flag.Parse()

	if *videoPath == "" {
		log.Fatal("Please provide a video path with -video flag")
	}

	dbConfig := store.Config{
		Type:       getEnv("DB_TYPE", "sqlite"),
		SQLitePath: getEnv("DB_PATH", "./timelens.db"),
	}
	if dbConfig.Type == "postgres" {
		dbConfig.Host = getEnv("DB_HOST", "localhost")
		dbConfig.Port = 5432
		if raw := os.Getenv("DB_PORT"); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil {
				dbConfig.Port = v
			}
		}
		dbConfig.User = getEnv("DB_USER", "timelens")
		dbConfig.Password = getEnv("DB_PASSWORD", "timelens_dev")
		dbConfig.Name = getEnv("DB_NAME", "timelens")
	}

	db, err := store.NewDB(dbConfig)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	frameExtractor, err := capture.NewFrameExtractor()
	if err != nil {
		log.Fatal("Failed to initialize frame extractor:", err)
	}
	audioExtractor, err := audio.NewExtractor()
	if err != nil {
		log.Fatal("Failed to initialize audio extractor:", err)
	}

	var transcriber transcribe.Transcriber
	if host := os.Getenv("STTD_HOST"); host != "" {
		sttdPort := 8090
		if raw := os.Getenv("STTD_PORT"); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil {
				sttdPort = v
			}
		}
		transcriber = transcribe.NewSTTDClient(host, sttdPort, 2*time.Minute)
	} else {
		transcriber = transcribe.NewWhisperClient(os.Getenv("OPENAI_API_KEY"), "whisper-1")
	}

	config := capture.Config{
		FrameIntervalSeconds: *interval,
		ChunkSeconds:         *chunk,
		OverlapSeconds:       *overlap,
		ChunkTimeout:         2 * time.Minute,
		Model:                "whisper-1",
	}
	pipeline := capture.NewPipeline(config, frameExtractor, audioExtractor,
		dedup.New(*threshold), transcriber,
		store.NewSourceRepo(db), store.NewFrameRepo(db), store.NewTranscriptionRepo(db))

	result, err := pipeline.ProcessVideo(context.Background(), *videoPath)
	if err != nil {
		if result != nil {
			log.Printf("Partial result: %d frames observed, %d stored, %d transcriptions",
				result.FramesObserved, result.FramesStored, result.TranscriptionsCreated)
		}
		log.Fatal("Processing failed: ", err)
	}

	fmt.Printf("Processed %s (source %s)\n", result.Filename, result.SourceID)
	fmt.Printf("  duration:        %.1fs\n", result.DurationSeconds)
	fmt.Printf("  frames observed: %d\n", result.FramesObserved)
	fmt.Printf("  frames stored:   %d\n", result.FramesStored)
	fmt.Printf("  frames dropped:  %d\n", result.FramesDropped)
	fmt.Printf("  transcriptions:  %d\n", result.TranscriptionsCreated)
	if result.ChunksTimedOut > 0 {
		fmt.Printf("  chunks timed out: %d\n", result.ChunksTimedOut)
	}
	if result.TranscriberOffline {
		fmt.Println("  transcription service was unavailable; audio incomplete")
	}
	if result.MergedTranscript != "" {
		fmt.Printf("\nTranscript:\n%s\n", result.MergedTranscript)
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
