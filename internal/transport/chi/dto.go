package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kailas-cloud/papernest/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email,max=255"`
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// LoginResponse carries the new session.
type LoginResponse struct {
	SessionID string       `json:"session_id"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// PaperRequest is the body of POST /papers.
type PaperRequest struct {
	Title      string `json:"title"      validate:"required,max=500"`
	Authors    string `json:"authors"`
	Status     string `json:"status"     validate:"omitempty,oneof=to_read reading done"`
	Priority   string `json:"priority"   validate:"omitempty,oneof=high medium low"`
	Categories string `json:"categories"`
	PaperText  string `json:"paper_text"`
}

// PaperPatchRequest is the body of PATCH /papers/{id}. Absent fields are left unchanged.
type PaperPatchRequest struct {
	Title      *string `json:"title"      validate:"omitempty,min=1,max=500"`
	Authors    *string `json:"authors"`
	Status     *string `json:"status"     validate:"omitempty,oneof=to_read reading done"`
	Priority   *string `json:"priority"   validate:"omitempty,oneof=high medium low"`
	Categories *string `json:"categories"`
	PaperText  *string `json:"paper_text"`
}

// PaperResponse is the public view of a paper.
type PaperResponse struct {
	ID         int64      `json:"id"`
	OwnerID    int64      `json:"owner_id"`
	Title      string     `json:"title"`
	Authors    string     `json:"authors"`
	Status     string     `json:"status"`
	Priority   string     `json:"priority"`
	Categories string     `json:"categories"`
	PaperText  string     `json:"paper_text"`
	Summary    string     `json:"summary"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at"`
}

// QueryRequest is the body of POST /papers/{id}/chat and /papers/{id}/context.
type QueryRequest struct {
	Query string `json:"query"  validate:"required"`
	TopK  *int   `json:"top_k"  validate:"omitempty,min=1,max=50"`
}

// ChatResponse is a generated answer with its grounding chunks.
type ChatResponse struct {
	Answer        string   `json:"answer"`
	ContextChunks []string `json:"context_chunks"`
}

// ScoredChunkResponse is one ranked chunk.
type ScoredChunkResponse struct {
	Index int     `json:"index"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

// ContextResponse exposes the ranking behind a chat answer.
type ContextResponse struct {
	Provider    string                `json:"provider"`
	Fallback    bool                  `json:"fallback"`
	Scored      int                   `json:"scored_chunks"`
	TotalChunks int                   `json:"total_chunks"`
	Chunks      []ScoredChunkResponse `json:"chunks"`
	Context     string                `json:"context"`
}

// decodeBody decodes a JSON body into dst and validates it.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body: %w", domain.ErrValidation, err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %s", domain.ErrValidation, describe(verrs))
		}
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return nil
}

func describe(errs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		field := jsonName(e.Field())
		switch e.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "email":
			msgs = append(msgs, field+" must be a valid email")
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, e.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", field, e.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed on %q", field, e.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// jsonName turns a Go field name into its snake_case JSON key.
func jsonName(field string) string {
	switch field {
	case "PaperText":
		return "paper_text"
	case "TopK":
		return "top_k"
	}
	return strings.ToLower(field)
}

func userToResponse(u domain.User) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, Username: u.Username, CreatedAt: u.CreatedAt}
}

func paperToResponse(p domain.Paper) PaperResponse {
	return PaperResponse{
		ID:         p.ID,
		OwnerID:    p.OwnerID,
		Title:      p.Title,
		Authors:    p.Authors,
		Status:     string(p.Status),
		Priority:   string(p.Priority),
		Categories: p.Categories,
		PaperText:  p.PaperText,
		Summary:    p.Summary,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func paperFromRequest(req PaperRequest) domain.Paper {
	return domain.Paper{
		Title:      req.Title,
		Authors:    req.Authors,
		Status:     domain.PaperStatus(req.Status),
		Priority:   domain.PaperPriority(req.Priority),
		Categories: req.Categories,
		PaperText:  req.PaperText,
	}
}

func patchFromRequest(req PaperPatchRequest) domain.PaperPatch {
	p := domain.PaperPatch{
		Title:      req.Title,
		Authors:    req.Authors,
		Categories: req.Categories,
		PaperText:  req.PaperText,
	}
	if req.Status != nil {
		s := domain.PaperStatus(*req.Status)
		p.Status = &s
	}
	if req.Priority != nil {
		pr := domain.PaperPriority(*req.Priority)
		p.Priority = &pr
	}
	return p
}
