package content

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory [Store] for tests and single-node dev setups.
type MemStore struct {
	mu      sync.RWMutex
	lessons map[string]Lesson
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{lessons: make(map[string]Lesson)}
}

// Create implements [Store].
func (s *MemStore) Create(_ context.Context, lesson *Lesson) error {
	if err := lesson.Validate(); err != nil {
		return err
	}
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.lessons[lesson.ID]; exists {
		return fmt.Errorf("content: lesson with id %q already exists", lesson.ID)
	}
	now := time.Now().UTC()
	lesson.CreatedAt = now
	lesson.UpdatedAt = now
	s.lessons[lesson.ID] = cloneLesson(*lesson)
	return nil
}

// Get implements [Store].
func (s *MemStore) Get(_ context.Context, id string) (*Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lessons[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	out := cloneLesson(l)
	return &out, nil
}

// List implements [Store].
func (s *MemStore) List(_ context.Context) ([]LessonSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LessonSummary, 0, len(s.lessons))
	for _, l := range s.lessons {
		out = append(out, LessonSummary{
			ID:        l.ID,
			Title:     l.Title,
			Language:  l.Language,
			WordCount: len(l.Words),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

// Delete implements [Store].
func (s *MemStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lessons, id)
	return nil
}

// cloneLesson deep-copies the words slice so callers cannot mutate stored
// state.
func cloneLesson(l Lesson) Lesson {
	out := l
	out.Words = append(out.Words[:0:0], l.Words...)
	return out
}
