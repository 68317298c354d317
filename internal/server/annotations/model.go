// Package annotations keeps the comment and question lists attached to a
// file. Each list is a JSON sidecar object next to the file in the blob store;
// writes are conditional on the version that was read, and lost races are
// retried against the fresh document.
package annotations

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/enginuity/internal/common"
)

// Kind names a sidecar document type.
type Kind string

const (
	KindComments  Kind = "comments"
	KindQuestions Kind = "questions"
)

// Kinds lists every sidecar kind.
var Kinds = []Kind{KindComments, KindQuestions}

// SidecarKey is the store key of the kind document of fileKey.
func SidecarKey(fileKey string, kind Kind) string {
	return fileKey + "." + string(kind) + ".json"
}

// IsSidecarKey reports whether key names a sidecar document.
func IsSidecarKey(key string) bool {
	for _, kind := range Kinds {
		if strings.HasSuffix(key, "."+string(kind)+".json") {
			return true
		}
	}
	return false
}

// Comment is a free-text note on a file.
type Comment struct {
	ID        string     `json:"id"`
	Text      string     `json:"text"`
	Author    string     `json:"author,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	EditedAt  *time.Time `json:"editedAt"`
}

// Question is a comment that can receive one answer.
type Question struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Author     string     `json:"author,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	EditedAt   *time.Time `json:"editedAt"`
	Answer     *string    `json:"answer"`
	AnsweredAt *time.Time `json:"answeredAt"`
}

// Answered reports whether q carries an answer.
func (q Question) Answered() bool { return q.Answer != nil }

// record is implemented by the element types of sidecar documents.
type record interface {
	Comment | Question
	recordID() string
	check() error
}

func (c Comment) recordID() string { return c.ID }

func (c Comment) check() error {
	if c.CreatedAt.IsZero() {
		return fmt.Errorf("%w: comment %q has no createdAt", common.ErrorSchema, c.ID)
	}
	return nil
}

func (q Question) recordID() string { return q.ID }

func (q Question) check() error {
	if q.CreatedAt.IsZero() {
		return fmt.Errorf("%w: question %q has no createdAt", common.ErrorSchema, q.ID)
	}
	if (q.Answer == nil) != (q.AnsweredAt == nil) {
		return fmt.Errorf("%w: question %q must set answer and answeredAt together", common.ErrorSchema, q.ID)
	}
	return nil
}

func indexOf[T record](items []T, id string) int {
	for i, item := range items {
		if item.recordID() == id {
			return i
		}
	}
	return -1
}
