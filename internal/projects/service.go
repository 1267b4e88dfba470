// Package projects stores uploaded directory trees and shares them via short links.
//
// The tree payload arrives already parsed; this package keeps it opaque.
package projects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MGallo-Code/dirshare/internal/clock"
	"github.com/MGallo-Code/dirshare/internal/store"
	"github.com/gofrs/uuid/v5"
)

const maxNameLen = 200

var (
	// ErrNotFound is returned for missing projects and for projects owned by someone else.
	ErrNotFound = errors.New("project not found")

	ErrEmptyName   = errors.New("project name is required")
	ErrNameTooLong = errors.New("project name is too long")
	ErrInvalidData = errors.New("project data must be a JSON tree")
	ErrNegative    = errors.New("size and itemCount must not be negative")
)

// Store defines record operations needed by the project service.
// Satisfied by *store.Records.
type Store interface {
	SaveProject(ctx context.Context, p *store.Project) error
	GetProject(ctx context.Context, id uuid.UUID) (*store.Project, error)
	ListUserProjects(ctx context.Context, userID uuid.UUID) ([]store.ProjectSummary, error)
	DeleteProject(ctx context.Context, p *store.Project) error
}

// Shortener mints short links. Satisfied by *shorturl.Service.
type Shortener interface {
	Create(ctx context.Context, originalURL string) (string, error)
}

type Service struct {
	Store     Store
	Shortener Shortener
	Clock     clock.Clock

	// BaseURL is the public origin; project links point at BaseURL/projects/{id}.
	BaseURL string
}

func NewService(s Store, sh Shortener, baseURL string) *Service {
	return &Service{
		Store:     s,
		Shortener: sh,
		Clock:     clock.Real{},
		BaseURL:   strings.TrimRight(baseURL, "/"),
	}
}

// ProjectURL is the canonical link to share for project id.
func (s *Service) ProjectURL(id uuid.UUID) string {
	return s.BaseURL + "/projects/" + id.String()
}

// ShortLink turns a short id into a full /s/ link; empty stays empty.
func (s *Service) ShortLink(shortID string) string {
	if shortID == "" {
		return ""
	}
	return s.BaseURL + "/s/" + shortID
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return "", ErrNameTooLong
	}
	return name, nil
}

type CreateInput struct {
	UserID    uuid.UUID
	Name      string
	Size      int64
	ItemCount int
	Data      json.RawMessage
}

// Create stores a new project and mints its short link. A failed short link
// is logged and leaves ShortID empty; the project itself is still saved.
func (s *Service) Create(ctx context.Context, in CreateInput) (*store.Project, error) {
	name, err := cleanName(in.Name)
	if err != nil {
		return nil, err
	}
	if in.Size < 0 || in.ItemCount < 0 {
		return nil, ErrNegative
	}
	if len(in.Data) == 0 || string(in.Data) == "null" || !json.Valid(in.Data) {
		return nil, ErrInvalidData
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating project id: %w", err)
	}
	now := s.Clock.Now().UTC()
	p := &store.Project{
		ID:        id,
		UserID:    in.UserID,
		Name:      name,
		Size:      in.Size,
		ItemCount: in.ItemCount,
		Data:      in.Data,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if s.Shortener != nil {
		shortID, err := s.Shortener.Create(ctx, s.ProjectURL(id))
		if err != nil {
			slog.Warn("failed to create project short link", "project_id", id, "error", err)
		} else {
			p.ShortID = shortID
		}
	}

	if err := s.Store.SaveProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns the owner's project summaries, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]store.ProjectSummary, error) {
	return s.Store.ListUserProjects(ctx, userID)
}

// Get returns a project owned by userID.
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*store.Project, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, ErrNotFound
	}
	return p, nil
}

// GetPublic returns any project regardless of owner, for the read-only viewer.
func (s *Service) GetPublic(ctx context.Context, id uuid.UUID) (*store.Project, error) {
	return s.load(ctx, id)
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*store.Project, error) {
	p, err := s.Store.GetProject(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading project: %w", err)
	}
	return p, nil
}

func (s *Service) Rename(ctx context.Context, userID, id uuid.UUID, name string) (*store.Project, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	p.Name = name
	p.UpdatedAt = s.Clock.Now().UTC()
	if err := s.Store.SaveProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes the project and its index entry. Its short link is left to
// age out through the regular cleanup.
func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	return s.Store.DeleteProject(ctx, p)
}

// PublicProject is what anonymous viewers see; the owner id is withheld.
type PublicProject struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Size      int64           `json:"size"`
	ItemCount int             `json:"itemCount"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func toPublic(p *store.Project) PublicProject {
	return PublicProject{
		ID:        p.ID,
		Name:      p.Name,
		Size:      p.Size,
		ItemCount: p.ItemCount,
		Data:      p.Data,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
