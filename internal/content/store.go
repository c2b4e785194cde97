// Package content stores practice lessons: titled, timed word transcripts
// that the segmenter turns into practice sentences.
//
// Two implementations exist: [MemStore] for tests and single-node dev
// setups, and [PostgresStore] for deployments.
package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sorilabs/sori/internal/segment"
)

// ErrNotFound is returned when a lesson ID does not exist.
var ErrNotFound = errors.New("content: lesson not found")

// Lesson is one practice transcript.
type Lesson struct {
	// ID is the unique lesson identifier.
	ID string `json:"id"`

	// Title is the display name.
	Title string `json:"title"`

	// Language is the BCP-47 tag of the lesson's language, e.g. "en-US".
	Language string `json:"language"`

	// Words is the ordered, timed transcript.
	Words []segment.TimedWord `json:"words"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Sentences segments the lesson transcript into practice sentences.
func (l *Lesson) Sentences() []segment.Sentence {
	return segment.Segment(l.Words)
}

// Validate checks the lesson for storability.
func (l *Lesson) Validate() error {
	var errs []error
	if l.Title == "" {
		errs = append(errs, fmt.Errorf("title must not be empty"))
	}
	if l.Language == "" {
		errs = append(errs, fmt.Errorf("language must not be empty"))
	}
	if len(l.Words) == 0 {
		errs = append(errs, fmt.Errorf("words must not be empty"))
	}
	for i, w := range l.Words {
		if w.Word == "" {
			errs = append(errs, fmt.Errorf("words[%d]: empty word", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("content: invalid lesson: %w", errors.Join(errs...))
	}
	return nil
}

// LessonSummary is the listing shape: a lesson without its transcript.
type LessonSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Language string `json:"language"`

	// WordCount is the transcript length.
	WordCount int `json:"wordCount"`
}

// Store persists lessons. Implementations must be safe for concurrent use.
type Store interface {
	// Create stores a new lesson. A missing ID is generated; CreatedAt and
	// UpdatedAt are set. Returns an error if the ID already exists.
	Create(ctx context.Context, lesson *Lesson) error

	// Get returns the lesson with the given ID, or an error wrapping
	// [ErrNotFound].
	Get(ctx context.Context, id string) (*Lesson, error)

	// List returns summaries of all lessons ordered by title.
	List(ctx context.Context) ([]LessonSummary, error)

	// Delete removes a lesson. Deleting an unknown ID is not an error.
	Delete(ctx context.Context, id string) error
}
