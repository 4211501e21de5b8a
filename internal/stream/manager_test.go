package stream

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"path/filepath"
	"testing"

	"github.com/kdimtricp/timelens/internal/dedup"
	"github.com/kdimtricp/timelens/internal/models"
	"github.com/kdimtricp/timelens/internal/store"
)

func testManager(t *testing.T, maxSessions int) (*Manager, *store.DB) {
	t.Helper()
	db, err := store.NewDB(store.Config{
		Type:       "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m := NewManager(maxSessions, dedup.New(dedup.DefaultSimilarityThreshold),
		store.NewSourceRepo(db), store.NewFrameRepo(db))
	return m, db
}

// testFrame renders a half-and-half image; the split controls how
// different two frames hash.
func testFrame(t *testing.T, split int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			c := color.RGBA{255, 255, 255, 255}
			if x < split {
				c = color.RGBA{0, 0, 0, 255}
			}
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("Failed to encode test frame: %v", err)
	}
	return buf.Bytes()
}

func TestCreateSessionCapacity(t *testing.T) {
	m, _ := testManager(t, 2)

	if _, err := m.CreateSession("one"); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := m.CreateSession("two"); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := m.CreateSession("three"); !errors.Is(err, ErrCapacity) {
		t.Errorf("Expected capacity error, got %v", err)
	}
}

func TestEndedSessionFreesCapacity(t *testing.T) {
	m, _ := testManager(t, 1)
	ctx := context.Background()

	s, err := m.CreateSession("one")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := m.AcceptPublish(ctx, s.StreamKey, "10.0.0.1:4000"); err != nil {
		t.Fatalf("AcceptPublish failed: %v", err)
	}
	if err := m.Stop(ctx, s.StreamKey); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if _, err := m.CreateSession("two"); err != nil {
		t.Errorf("Ended session should not hold a slot: %v", err)
	}
}

func TestAcceptPublishUnknownKeyAlwaysRejects(t *testing.T) {
	m, _ := testManager(t, 4)

	for _, addr := range []string{"", "127.0.0.1:1935", "ageless.example:80"} {
		if _, err := m.AcceptPublish(context.Background(), "bogus-key", addr); !errors.Is(err, ErrUnknownStreamKey) {
			t.Errorf("Expected unknown key rejection for addr %q, got %v", addr, err)
		}
	}
}

func TestAcceptPublishTransitionsToLive(t *testing.T) {
	m, db := testManager(t, 4)
	ctx := context.Background()

	s, err := m.CreateSession("talk")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if s.State != StateWaiting {
		t.Errorf("Expected waiting, got %s", s.State)
	}

	live, err := m.AcceptPublish(ctx, s.StreamKey, "10.0.0.1:4000")
	if err != nil {
		t.Fatalf("AcceptPublish failed: %v", err)
	}
	if live.State != StateLive {
		t.Errorf("Expected live, got %s", live.State)
	}
	if live.SourceID == "" {
		t.Fatal("Live session should have a backing source")
	}

	source, err := store.NewSourceRepo(db).GetByID(ctx, live.SourceID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if source == nil || source.Type != models.SourceStream {
		t.Error("Backing source missing or wrong kind")
	}

	// A second publish against the live session is rejected.
	if _, err := m.AcceptPublish(ctx, s.StreamKey, "10.0.0.2:4000"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected invalid state, got %v", err)
	}
}

func TestReconnectAfterEnd(t *testing.T) {
	m, _ := testManager(t, 4)
	ctx := context.Background()

	s, _ := m.CreateSession("talk")
	first, err := m.AcceptPublish(ctx, s.StreamKey, "10.0.0.1:4000")
	if err != nil {
		t.Fatalf("AcceptPublish failed: %v", err)
	}
	if err := m.NotifyPublishDone(ctx, s.StreamKey); err != nil {
		t.Fatalf("NotifyPublishDone failed: %v", err)
	}

	second, err := m.AcceptPublish(ctx, s.StreamKey, "10.0.0.1:4001")
	if err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
	if second.SourceID == first.SourceID {
		t.Error("Reconnect should open a fresh source")
	}
	if second.FramesReceived != 0 || second.BytesReceived != 0 {
		t.Error("Reconnect should reset counters")
	}
}

func TestIngestFrameRequiresLive(t *testing.T) {
	m, db := testManager(t, 4)
	ctx := context.Background()

	if err := m.IngestFrame(ctx, "bogus", testFrame(t, 32)); !errors.Is(err, ErrUnknownStreamKey) {
		t.Errorf("Expected unknown key, got %v", err)
	}

	s, _ := m.CreateSession("talk")
	if err := m.IngestFrame(ctx, s.StreamKey, testFrame(t, 32)); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected invalid state for waiting session, got %v", err)
	}

	// Rejected ingestion must not touch the store.
	sources, err := store.NewSourceRepo(db).List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(sources) != 0 {
		t.Errorf("Rejected ingest created %d sources", len(sources))
	}
}

func TestIngestFramePipeline(t *testing.T) {
	m, db := testManager(t, 4)
	ctx := context.Background()

	s, _ := m.CreateSession("talk")
	live, err := m.AcceptPublish(ctx, s.StreamKey, "10.0.0.1:4000")
	if err != nil {
		t.Fatalf("AcceptPublish failed: %v", err)
	}

	// Two identical frames then a scene change.
	for _, split := range []int{32, 32, 60} {
		if err := m.IngestFrame(ctx, s.StreamKey, testFrame(t, split)); err != nil {
			t.Fatalf("IngestFrame failed: %v", err)
		}
	}

	got, _ := m.GetSession(s.StreamKey)
	if got.FramesReceived != 3 {
		t.Errorf("Expected 3 received, got %d", got.FramesReceived)
	}
	if got.FramesStored != 2 {
		t.Errorf("Expected 2 stored, got %d", got.FramesStored)
	}
	if got.Width != 64 || got.Height != 64 {
		t.Errorf("Resolution not sampled from first frame: %dx%d", got.Width, got.Height)
	}

	count, err := store.NewFrameRepo(db).CountBySource(ctx, live.SourceID)
	if err != nil {
		t.Fatalf("CountBySource failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 unique frames in store, got %d", count)
	}
}

func TestIngestFrameDropsMalformedBytes(t *testing.T) {
	m, _ := testManager(t, 4)
	ctx := context.Background()

	s, _ := m.CreateSession("talk")
	if _, err := m.AcceptPublish(ctx, s.StreamKey, "10.0.0.1:4000"); err != nil {
		t.Fatalf("AcceptPublish failed: %v", err)
	}

	if err := m.IngestFrame(ctx, s.StreamKey, []byte("not a jpeg")); err != nil {
		t.Errorf("Malformed frame should be dropped, not errored: %v", err)
	}
	if err := m.IngestFrame(ctx, s.StreamKey, testFrame(t, 32)); err != nil {
		t.Fatalf("Session should survive a malformed frame: %v", err)
	}

	got, _ := m.GetSession(s.StreamKey)
	if got.FramesReceived != 2 {
		t.Errorf("Expected 2 received, got %d", got.FramesReceived)
	}
	if got.FramesStored != 1 {
		t.Errorf("Expected 1 stored, got %d", got.FramesStored)
	}
}

func TestStopFinalizesSource(t *testing.T) {
	m, db := testManager(t, 4)
	ctx := context.Background()

	s, _ := m.CreateSession("talk")
	live, _ := m.AcceptPublish(ctx, s.StreamKey, "10.0.0.1:4000")
	if err := m.Stop(ctx, s.StreamKey); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	source, err := store.NewSourceRepo(db).GetByID(ctx, live.SourceID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if source.EndTimestamp == nil {
		t.Error("Source end not finalized")
	}

	if err := m.Stop(ctx, s.StreamKey); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Second stop should be invalid state, got %v", err)
	}
	if err := m.IngestFrame(ctx, s.StreamKey, testFrame(t, 32)); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Ingest after stop should be rejected, got %v", err)
	}
}

func TestPublishFailureOnEndedSessionStaysEnded(t *testing.T) {
	m, db := testManager(t, 4)
	ctx := context.Background()

	s, _ := m.CreateSession("talk")
	if _, err := m.AcceptPublish(ctx, s.StreamKey, "10.0.0.1:4000"); err != nil {
		t.Fatalf("AcceptPublish failed: %v", err)
	}
	if err := m.Stop(ctx, s.StreamKey); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// With the store gone the reconnect cannot open a source; the
	// session must stay ended rather than slip into error.
	db.Close()
	if _, err := m.AcceptPublish(ctx, s.StreamKey, "10.0.0.1:4001"); err == nil {
		t.Fatal("Expected reconnect to fail with the store closed")
	}

	got, ok := m.GetSession(s.StreamKey)
	if !ok {
		t.Fatal("Session missing after failed reconnect")
	}
	if got.State != StateEnded {
		t.Errorf("Expected ended, got %s", got.State)
	}
}

func TestDeleteSession(t *testing.T) {
	m, _ := testManager(t, 4)
	ctx := context.Background()

	s, _ := m.CreateSession("talk")
	if _, err := m.AcceptPublish(ctx, s.StreamKey, "10.0.0.1:4000"); err != nil {
		t.Fatalf("AcceptPublish failed: %v", err)
	}
	if err := m.DeleteSession(ctx, s.StreamKey); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	if _, ok := m.GetSession(s.StreamKey); ok {
		t.Error("Session still visible after delete")
	}
	if err := m.IngestFrame(ctx, s.StreamKey, testFrame(t, 32)); !errors.Is(err, ErrUnknownStreamKey) {
		t.Errorf("Deleted key should be unknown, got %v", err)
	}
	if err := m.DeleteSession(ctx, s.StreamKey); !errors.Is(err, ErrUnknownStreamKey) {
		t.Errorf("Second delete should be unknown, got %v", err)
	}
}

func TestDeleteSessionKeepsHandleOnStopFailure(t *testing.T) {
	m, db := testManager(t, 4)
	ctx := context.Background()

	s, _ := m.CreateSession("talk")
	if _, err := m.AcceptPublish(ctx, s.StreamKey, "10.0.0.1:4000"); err != nil {
		t.Fatalf("AcceptPublish failed: %v", err)
	}

	db.Close()
	if err := m.DeleteSession(ctx, s.StreamKey); err == nil {
		t.Fatal("Expected delete to fail when the source cannot be closed")
	}

	// The key must survive a failed stop so the close can be retried.
	got, ok := m.GetSession(s.StreamKey)
	if !ok {
		t.Fatal("Session removed despite failed stop")
	}
	if got.State != StateLive {
		t.Errorf("Expected session to stay live, got %s", got.State)
	}
}

func TestStatusCounts(t *testing.T) {
	m, _ := testManager(t, 4)
	ctx := context.Background()

	a, _ := m.CreateSession("a")
	b, _ := m.CreateSession("b")
	m.CreateSession("c")

	m.AcceptPublish(ctx, a.StreamKey, "10.0.0.1:4000")
	m.AcceptPublish(ctx, b.StreamKey, "10.0.0.2:4000")
	m.Stop(ctx, b.StreamKey)

	status := m.Status()
	if status.MaxSessions != 4 {
		t.Errorf("Expected max 4, got %d", status.MaxSessions)
	}
	if status.Waiting != 1 || status.Live != 1 || status.Ended != 1 {
		t.Errorf("Unexpected counts: waiting=%d live=%d ended=%d",
			status.Waiting, status.Live, status.Ended)
	}
	if len(status.Sessions) != 3 {
		t.Errorf("Expected 3 sessions, got %d", len(status.Sessions))
	}
}
