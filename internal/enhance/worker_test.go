package enhance

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ghostatlas/ghostatlas/internal/encounter"
)

type fakeGenerator struct {
	story      string
	storyErr   error
	image      []byte
	imageErr   error
	storyCalls int
	imageCalls int
}

func (g *fakeGenerator) EnhanceStory(_ context.Context, _ string) (string, error) {
	g.storyCalls++
	return g.story, g.storyErr
}

func (g *fakeGenerator) GenerateIllustration(_ context.Context, _ string) ([]byte, error) {
	g.imageCalls++
	return g.image, g.imageErr
}

type fakeStorer struct {
	err   error
	calls int
	data  []byte
}

func (s *fakeStorer) PutIllustration(_ context.Context, encounterID string, data []byte) (string, error) {
	s.calls++
	s.data = data
	if s.err != nil {
		return "", s.err
	}
	return fmt.Sprintf("https://cdn.example.com/illustrations/%s/img.png", encounterID), nil
}

func seedPending(t *testing.T, repo *encounter.InMemoryRepository, id string) {
	t.Helper()
	now := time.Now().UTC()
	err := repo.Create(context.Background(), &encounter.Encounter{
		ID:            id,
		AuthorName:    "seed",
		Location:      encounter.Location{Latitude: 37.7749, Longitude: -122.4194},
		OriginalStory: "cold hands on my shoulder in an empty room",
		EncounterTime: now,
		Status:        encounter.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestProcessOneSuccess(t *testing.T) {
	repo := encounter.NewInMemoryRepository()
	seedPending(t, repo, "e-1")

	gen := &fakeGenerator{story: "the enhanced story", image: []byte{0x89, 0x50}}
	store := &fakeStorer{}
	w := NewWorker(repo, gen, store, nil)

	processed, err := w.ProcessOne(context.Background())
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if !processed {
		t.Fatal("expected a claim")
	}

	e, err := repo.GetByID(context.Background(), "e-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if e.Status != encounter.StatusEnhanced {
		t.Errorf("status = %q, want enhanced", e.Status)
	}
	if e.EnhancedStory != "the enhanced story" {
		t.Errorf("enhancedStory = %q", e.EnhancedStory)
	}
	if e.IllustrationURL == "" {
		t.Error("illustration URL not recorded")
	}
	if store.calls != 1 {
		t.Errorf("store calls = %d, want 1", store.calls)
	}
}

func TestProcessOneEmptyQueue(t *testing.T) {
	w := NewWorker(encounter.NewInMemoryRepository(), &fakeGenerator{}, &fakeStorer{}, nil)

	processed, err := w.ProcessOne(context.Background())
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if processed {
		t.Error("nothing to claim, processed should be false")
	}
}

func TestProcessOneTextFailureReleases(t *testing.T) {
	repo := encounter.NewInMemoryRepository()
	seedPending(t, repo, "e-1")

	gen := &fakeGenerator{storyErr: errors.New("model unavailable")}
	w := NewWorker(repo, gen, &fakeStorer{}, nil)

	processed, err := w.ProcessOne(context.Background())
	if !processed {
		t.Fatal("expected a claim")
	}
	if err == nil {
		t.Fatal("expected error")
	}

	e, getErr := repo.GetByID(context.Background(), "e-1")
	if getErr != nil {
		t.Fatalf("GetByID: %v", getErr)
	}
	if e.Status != encounter.StatusPending {
		t.Errorf("status = %q, want pending after release", e.Status)
	}
	if e.EnhanceAttempts != 1 {
		t.Errorf("enhanceAttempts = %d, want 1", e.EnhanceAttempts)
	}
}

func TestProcessOneImageFailureSkipsStore(t *testing.T) {
	repo := encounter.NewInMemoryRepository()
	seedPending(t, repo, "e-1")

	gen := &fakeGenerator{story: "ok", imageErr: errors.New("quota exceeded")}
	store := &fakeStorer{}
	w := NewWorker(repo, gen, store, nil)

	if _, err := w.ProcessOne(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if store.calls != 0 {
		t.Errorf("store calls = %d, want 0", store.calls)
	}
}

func TestProcessOneStorageFailureReleases(t *testing.T) {
	repo := encounter.NewInMemoryRepository()
	seedPending(t, repo, "e-1")

	gen := &fakeGenerator{story: "ok", image: []byte{1}}
	w := NewWorker(repo, gen, &fakeStorer{err: errors.New("bucket unreachable")}, nil)

	if _, err := w.ProcessOne(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	e, err := repo.GetByID(context.Background(), "e-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if e.Status != encounter.StatusPending {
		t.Errorf("status = %q, want pending", e.Status)
	}
}

func TestAttemptExhaustion(t *testing.T) {
	repo := encounter.NewInMemoryRepository()
	seedPending(t, repo, "e-1")

	gen := &fakeGenerator{storyErr: errors.New("persistent failure")}
	w := NewWorker(repo, gen, &fakeStorer{}, nil)

	for i := 0; i < encounter.MaxEnhanceAttempts; i++ {
		processed, _ := w.ProcessOne(context.Background())
		if !processed {
			t.Fatalf("attempt %d: expected a claim", i+1)
		}
	}

	// Attempts exhausted: the encounter is no longer claimable.
	processed, err := w.ProcessOne(context.Background())
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if processed {
		t.Error("exhausted encounter should not be claimed again")
	}
	if gen.storyCalls != encounter.MaxEnhanceAttempts {
		t.Errorf("storyCalls = %d, want %d", gen.storyCalls, encounter.MaxEnhanceAttempts)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	repo := encounter.NewInMemoryRepository()
	w := NewWorker(repo, &fakeGenerator{}, &fakeStorer{}, nil, WithPollInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestWorkerMetrics(t *testing.T) {
	repo := encounter.NewInMemoryRepository()
	seedPending(t, repo, "e-1")

	m := NewMetrics()
	gen := &fakeGenerator{story: "ok", image: []byte{1}}
	w := NewWorker(repo, gen, &fakeStorer{}, nil, WithMetrics(m))

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if len(m.Collectors()) != 3 {
		t.Errorf("collectors = %d, want 3", len(m.Collectors()))
	}
}
