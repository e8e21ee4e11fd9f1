package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/flaretrack/apiserver/internal/store"
	"github.com/flaretrack/apiserver/types"
)

// CatalogRepository defines persistence operations for trackable items.
type CatalogRepository interface {
	Get(ctx context.Context, kind types.ItemKind, id int) (types.Item, error)
	ResolveName(ctx context.Context, kind types.ItemKind, name string) (types.Item, error)
	List(ctx context.Context, kind types.ItemKind) ([]types.Item, error)
	Create(ctx context.Context, item types.Item) (types.Item, error)
	Update(ctx context.Context, item types.Item) (types.Item, error)
	Delete(ctx context.Context, kind types.ItemKind, id int) error
}

// CatalogService encapsulates master-list use-cases for diagnoses,
// symptoms, and medications.
type CatalogService struct {
	repo CatalogRepository
}

func NewCatalogService(repo CatalogRepository) *CatalogService {
	return &CatalogService{repo: repo}
}

// Create adds a new item. The name must not match any canonical name or any
// synonym of the same kind; on a collision the error suggests the existing
// entry.
func (s *CatalogService) Create(ctx context.Context, kind types.ItemKind, name string, synonyms []string) (types.Item, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Item{}, errors.New("name is required")
	}

	if existing, err := s.repo.ResolveName(ctx, kind, name); err == nil {
		return types.Item{}, fmt.Errorf("%q %w, did you mean %q?", name, store.ErrDuplicate, existing.Name)
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.Item{}, err
	}

	return s.repo.Create(ctx, types.Item{Kind: kind, Name: name, Synonyms: synonyms})
}

// ItemPatch is a partial catalog update. Nil fields are left unchanged.
type ItemPatch struct {
	Name     *string
	Synonyms []string
}

// Edit applies a partial update. The duplicate check is re-run only when the
// name changes.
func (s *CatalogService) Edit(ctx context.Context, kind types.ItemKind, id int, patch ItemPatch) (types.Item, error) {
	item, err := s.repo.Get(ctx, kind, id)
	if err != nil {
		return types.Item{}, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return types.Item{}, errors.New("name is required")
		}
		if name != item.Name {
			if existing, err := s.repo.ResolveName(ctx, kind, name); err == nil {
				return types.Item{}, fmt.Errorf("%q %w, did you mean %q?", name, store.ErrDuplicate, existing.Name)
			} else if !errors.Is(err, store.ErrNotFound) {
				return types.Item{}, err
			}
		}
		item.Name = name
	}
	if patch.Synonyms != nil {
		item.Synonyms = patch.Synonyms
	}

	return s.repo.Update(ctx, item)
}

func (s *CatalogService) Get(ctx context.Context, kind types.ItemKind, id int) (types.Item, error) {
	return s.repo.Get(ctx, kind, id)
}

func (s *CatalogService) List(ctx context.Context, kind types.ItemKind) ([]types.Item, error) {
	return s.repo.List(ctx, kind)
}

// Delete removes the item. Assignments and tracking cells referencing it are
// cleaned up by the schema's referential rules.
func (s *CatalogService) Delete(ctx context.Context, kind types.ItemKind, id int) error {
	return s.repo.Delete(ctx, kind, id)
}
