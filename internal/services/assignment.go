package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/flaretrack/apiserver/internal/store"
	"github.com/flaretrack/apiserver/types"
)

// AssignmentRepository defines persistence operations for user-item
// assignments.
type AssignmentRepository interface {
	Get(ctx context.Context, kind types.ItemKind, userID, itemID int) (types.Assignment, error)
	ListForUser(ctx context.Context, kind types.ItemKind, userID int) ([]types.Assignment, error)
	Create(ctx context.Context, a types.Assignment) (types.Assignment, error)
	UpdateMetadata(ctx context.Context, a types.Assignment) (types.Assignment, error)
	Repoint(ctx context.Context, kind types.ItemKind, userID, oldItemID, newItemID int) error
	Delete(ctx context.Context, kind types.ItemKind, userID, itemID int) error
}

// AssignmentMetadata carries the kind-specific fields supplied with a
// connect or update request.
type AssignmentMetadata struct {
	Keywords   []string `json:"keywords,omitempty"`
	DosageNum  float64  `json:"dosage_num,omitempty"`
	DosageUnit string   `json:"dosage_unit,omitempty"`
	TimesOfDay []string `json:"time_of_day,omitempty"`
}

// AssignmentService encapsulates enrollment use-cases: which items a user
// tracks, and the metadata they track them with.
type AssignmentService struct {
	users   UserRepository
	catalog CatalogRepository
	repo    AssignmentRepository
	events  *EventPublisher
}

func NewAssignmentService(users UserRepository, catalog CatalogRepository, repo AssignmentRepository, events *EventPublisher) *AssignmentService {
	return &AssignmentService{users: users, catalog: catalog, repo: repo, events: events}
}

// Connect enrolls the user with the item. The user and the item must exist
// and the pair must not already be assigned; the existence checks run first
// so the caller gets the most informative error.
func (s *AssignmentService) Connect(ctx context.Context, kind types.ItemKind, userID, itemID int, meta AssignmentMetadata) (types.Assignment, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Assignment{}, fmt.Errorf("user %w", store.ErrNotFound)
		}
		return types.Assignment{}, err
	}
	item, err := s.catalog.Get(ctx, kind, itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Assignment{}, fmt.Errorf("%s %w", kind, store.ErrNotFound)
		}
		return types.Assignment{}, err
	}

	a, err := s.repo.Create(ctx, types.Assignment{
		UserID:     userID,
		ItemID:     itemID,
		Kind:       kind,
		Keywords:   meta.Keywords,
		DosageNum:  meta.DosageNum,
		DosageUnit: meta.DosageUnit,
		TimesOfDay: meta.TimesOfDay,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.Assignment{}, fmt.Errorf("%s assignment %w for this user", kind, store.ErrDuplicate)
		}
		return types.Assignment{}, err
	}
	a.ItemName = item.Name
	return a, nil
}

// ConnectNew creates a catalog item on the fly and enrolls the user with it.
// This backs the "item id 0" connect form, where the user names an item that
// does not exist yet.
func (s *AssignmentService) ConnectNew(ctx context.Context, kind types.ItemKind, userID int, name string, synonyms []string, meta AssignmentMetadata) (types.Assignment, error) {
	catalog := NewCatalogService(s.catalog)
	item, err := catalog.Create(ctx, kind, name, synonyms)
	if err != nil {
		return types.Assignment{}, err
	}
	return s.Connect(ctx, kind, userID, item.ID, meta)
}

func (s *AssignmentService) Get(ctx context.Context, kind types.ItemKind, userID, itemID int) (types.Assignment, error) {
	return s.repo.Get(ctx, kind, userID, itemID)
}

func (s *AssignmentService) ListForUser(ctx context.Context, kind types.ItemKind, userID int) ([]types.Assignment, error) {
	return s.repo.ListForUser(ctx, kind, userID)
}

// UpdateMetadata applies a metadata patch to an existing assignment. Keyword
// updates are additive: the stored set is fetched first and the new keywords
// are appended, never replaced. Medication dosage fields are replaced.
func (s *AssignmentService) UpdateMetadata(ctx context.Context, kind types.ItemKind, userID, itemID int, meta AssignmentMetadata) (types.Assignment, error) {
	a, err := s.repo.Get(ctx, kind, userID, itemID)
	if err != nil {
		return types.Assignment{}, err
	}

	switch kind {
	case types.ItemDiagnosis:
		a.Keywords = append(a.Keywords, meta.Keywords...)
	case types.ItemMedication:
		a.DosageNum = meta.DosageNum
		a.DosageUnit = meta.DosageUnit
		a.TimesOfDay = meta.TimesOfDay
	default:
		return types.Assignment{}, fmt.Errorf("%s assignments carry no metadata", kind)
	}

	return s.repo.UpdateMetadata(ctx, a)
}

// ChangeItem repoints the assignment from oldItemID to newItemID, carrying
// every tracking cell for the pair along with it. The new item must exist
// and the new pair must not already be assigned.
func (s *AssignmentService) ChangeItem(ctx context.Context, kind types.ItemKind, userID, oldItemID, newItemID int) (types.Assignment, error) {
	if _, err := s.repo.Get(ctx, kind, userID, newItemID); err == nil {
		return types.Assignment{}, fmt.Errorf("%s assignment %w for this user", kind, store.ErrDuplicate)
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.Assignment{}, err
	}
	item, err := s.catalog.Get(ctx, kind, newItemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Assignment{}, fmt.Errorf("%s %w", kind, store.ErrNotFound)
		}
		return types.Assignment{}, err
	}

	if err := s.repo.Repoint(ctx, kind, userID, oldItemID, newItemID); err != nil {
		return types.Assignment{}, err
	}

	a, err := s.repo.Get(ctx, kind, userID, newItemID)
	if err != nil {
		return types.Assignment{}, err
	}
	a.ItemName = item.Name
	return a, nil
}

// Disconnect removes the assignment and, through the schema's cascade, every
// tracking cell recorded for the pair.
func (s *AssignmentService) Disconnect(ctx context.Context, kind types.ItemKind, userID, itemID int) error {
	if err := s.repo.Delete(ctx, kind, userID, itemID); err != nil {
		return err
	}
	s.events.AssignmentDisconnected(ctx, kind, userID, itemID)
	return nil
}
