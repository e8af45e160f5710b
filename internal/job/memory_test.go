package job

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryRepository_Save(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New("u")

	err := repo.Save(ctx, job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Verify it was saved
	saved, err := repo.FindByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.ID != job.ID {
		t.Errorf("expected ID %s, got %s", job.ID, saved.ID)
	}
	if repo.Len() != 1 {
		t.Errorf("expected 1 job, got %d", repo.Len())
	}
}

func TestMemoryRepository_Save_Update(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New("u")

	// Save initial
	_ = repo.Save(ctx, job)

	// Update job
	_ = job.Start()
	_ = repo.Save(ctx, job)

	// Verify update
	saved, _ := repo.FindByID(ctx, job.ID)
	if saved.Status != StatusProcessing {
		t.Errorf("expected status %s, got %s", StatusProcessing, saved.Status)
	}
	if repo.Len() != 1 {
		t.Errorf("expected 1 job, got %d", repo.Len())
	}
}

func TestMemoryRepository_FindByID_NotFound(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.FindByID(ctx, "nonexistent")
	if err != ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryRepository_Isolation(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := NewWithID("iso", "u")
	_ = repo.Save(ctx, job)

	// Mutating the original after save must not affect the stored copy
	job.UserID = "mutated"

	saved, _ := repo.FindByID(ctx, "iso")
	if saved.UserID != "u" {
		t.Errorf("stored job was mutated: %s", saved.UserID)
	}

	// Mutating a retrieved copy must not affect the stored copy either
	saved.UserID = "mutated"
	again, _ := repo.FindByID(ctx, "iso")
	if again.UserID != "u" {
		t.Errorf("stored job was mutated through FindByID: %s", again.UserID)
	}
}

func TestMemoryRepository_Concurrent(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j := New("u")
			_ = repo.Save(ctx, j)
			_, _ = repo.FindByID(ctx, j.ID)
		}()
	}
	wg.Wait()

	if repo.Len() != 50 {
		t.Errorf("expected 50 jobs, got %d", repo.Len())
	}
}
