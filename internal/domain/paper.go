package domain

import (
	"fmt"
	"time"
)

// PaperStatus is the reading state of a paper.
type PaperStatus string

// Reading states.
const (
	StatusToRead  PaperStatus = "to_read"
	StatusReading PaperStatus = "reading"
	StatusDone    PaperStatus = "done"
)

// Valid reports whether s is a known status.
func (s PaperStatus) Valid() bool {
	switch s {
	case StatusToRead, StatusReading, StatusDone:
		return true
	}
	return false
}

// PaperPriority ranks papers in a reading list.
type PaperPriority string

// Priorities.
const (
	PriorityHigh   PaperPriority = "high"
	PriorityMedium PaperPriority = "medium"
	PriorityLow    PaperPriority = "low"
)

// Valid reports whether p is a known priority.
func (p PaperPriority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Paper is a research paper entry owned by one user.
type Paper struct {
	ID         int64
	OwnerID    int64
	Title      string
	Authors    string
	Status     PaperStatus
	Priority   PaperPriority
	Categories string
	PaperText  string
	Summary    string
	CreatedAt  time.Time
	UpdatedAt  *time.Time
}

// ApplyDefaults fills unset status and priority.
func (p *Paper) ApplyDefaults() {
	if p.Status == "" {
		p.Status = StatusToRead
	}
	if p.Priority == "" {
		p.Priority = PriorityMedium
	}
}

// Validate checks invariants of a paper before it is stored.
func (p *Paper) Validate() error {
	if p.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if !p.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, p.Status)
	}
	if !p.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrValidation, p.Priority)
	}
	return nil
}

// PaperPatch is a partial update. Nil fields are left unchanged.
type PaperPatch struct {
	Title      *string
	Authors    *string
	Status     *PaperStatus
	Priority   *PaperPriority
	Categories *string
	PaperText  *string
}

// IsEmpty reports whether the patch changes nothing.
func (p PaperPatch) IsEmpty() bool {
	return p.Title == nil && p.Authors == nil && p.Status == nil &&
		p.Priority == nil && p.Categories == nil && p.PaperText == nil
}

// Apply merges the patch into paper and validates the result.
func (p PaperPatch) Apply(paper *Paper) error {
	if p.Title != nil {
		paper.Title = *p.Title
	}
	if p.Authors != nil {
		paper.Authors = *p.Authors
	}
	if p.Status != nil {
		paper.Status = *p.Status
	}
	if p.Priority != nil {
		paper.Priority = *p.Priority
	}
	if p.Categories != nil {
		paper.Categories = *p.Categories
	}
	if p.PaperText != nil {
		paper.PaperText = *p.PaperText
	}
	return paper.Validate()
}

// User is a registered account.
type User struct {
	ID             int64
	Email          string
	Username       string
	HashedPassword string
	CreatedAt      time.Time
}
