package app_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sorilabs/sori/internal/app"
	"github.com/sorilabs/sori/internal/config"
	"github.com/sorilabs/sori/internal/content"
	"github.com/sorilabs/sori/internal/segment"
	assessmock "github.com/sorilabs/sori/pkg/provider/assess/mock"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: ":0",
			LogLevel:   config.LogInfo,
		},
		Practice: config.PracticeConfig{Language: "en-US"},
	}
}

func TestNew_WithInjectedSubsystems(t *testing.T) {
	store := content.NewMemStore()
	provider := &assessmock.Provider{}

	a, err := app.New(context.Background(), baseConfig(),
		app.WithStore(store),
		app.WithProvider(provider),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Server() == nil {
		t.Fatal("no server wired")
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	// Second Shutdown is a no-op.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestNew_SeedsLessonsFromDir(t *testing.T) {
	dir := t.TempDir()
	lesson := content.Lesson{
		ID:       "lesson-news",
		Title:    "Morning news",
		Language: "en-US",
		Words: []segment.TimedWord{
			{Word: "Good", Start: 0, End: 0.3},
			{Word: "morning.", Start: 0.3, End: 0.8},
		},
	}
	data, _ := json.Marshal(lesson)
	if err := os.WriteFile(filepath.Join(dir, "news.json"), data, 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	// Non-JSON files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("notes"), 0o644); err != nil {
		t.Fatalf("write readme: %v", err)
	}

	cfg := baseConfig()
	cfg.Content.SeedDir = dir

	store := content.NewMemStore()
	a, err := app.New(context.Background(), cfg,
		app.WithStore(store),
		app.WithProvider(&assessmock.Provider{}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	got, err := store.Get(context.Background(), "lesson-news")
	if err != nil {
		t.Fatalf("seeded lesson missing: %v", err)
	}
	if got.Title != "Morning news" || len(got.Words) != 2 {
		t.Errorf("seeded lesson = %+v", got)
	}
}

func TestNew_SeedDirReimportIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	lesson := content.Lesson{
		ID:       "l1",
		Title:    "Repeat",
		Language: "en-US",
		Words:    []segment.TimedWord{{Word: "Hi"}},
	}
	data, _ := json.Marshal(lesson)
	if err := os.WriteFile(filepath.Join(dir, "l1.json"), data, 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	cfg := baseConfig()
	cfg.Content.SeedDir = dir
	store := content.NewMemStore()

	for i := 0; i < 2; i++ {
		a, err := app.New(context.Background(), cfg,
			app.WithStore(store),
			app.WithProvider(&assessmock.Provider{}),
		)
		if err != nil {
			t.Fatalf("New (round %d): %v", i, err)
		}
		a.Shutdown(context.Background())
	}

	sums, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sums) != 1 {
		t.Errorf("lessons after reimport = %d, want 1", len(sums))
	}
}

func TestNew_UnknownAssessProvider(t *testing.T) {
	cfg := baseConfig()
	cfg.Providers.Assess = config.AssessEntry{Name: "acme", APIKey: "k"}

	_, err := app.New(context.Background(), cfg, app.WithStore(content.NewMemStore()))
	if err == nil {
		t.Fatal("New should reject an unknown assess provider")
	}
}

func TestNew_UnknownCoachProvider(t *testing.T) {
	cfg := baseConfig()
	cfg.Providers.Coach = config.CoachEntry{Name: "acme", APIKey: "k", Model: "m"}

	_, err := app.New(context.Background(), cfg,
		app.WithStore(content.NewMemStore()),
		app.WithProvider(&assessmock.Provider{}),
	)
	if err == nil {
		t.Fatal("New should reject an unknown coach provider")
	}
}
