package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/flaretrack/apiserver/internal/store"
	"github.com/flaretrack/apiserver/types"
)

// TrackingRepository defines persistence operations for tracking cells.
type TrackingRepository interface {
	Insert(ctx context.Context, rec types.TrackingRecord) (types.TrackingRecord, error)
	ListForUser(ctx context.Context, kind types.ItemKind, userID int) ([]types.TrackingRecord, error)
	ListForDay(ctx context.Context, kind types.ItemKind, userID int, date string) ([]types.TrackingRecord, error)
	Get(ctx context.Context, kind types.ItemKind, recordID, userID int) (types.TrackingRecord, error)
	UpdateValue(ctx context.Context, kind types.ItemKind, userID, itemID int, date, bucket string, value float64) (types.TrackingRecord, error)
	DeleteOne(ctx context.Context, kind types.ItemKind, userID, itemID int, date, bucket string) error
	DeleteDay(ctx context.Context, kind types.ItemKind, userID int, date string) error
}

// TrackingService encapsulates the tracking-ledger use-cases: one value per
// (user, item, date, bucket) cell, gated on the item being assigned to the
// user.
type TrackingService struct {
	users       UserRepository
	assignments AssignmentRepository
	repo        TrackingRepository
	events      *EventPublisher
}

func NewTrackingService(users UserRepository, assignments AssignmentRepository, repo TrackingRepository, events *EventPublisher) *TrackingService {
	return &TrackingService{users: users, assignments: assignments, repo: repo, events: events}
}

// Track records a new cell. The assignment check runs before the insert so a
// missing enrollment reports "not associated" rather than a duplicate; the
// cell uniqueness itself is enforced atomically by the insert.
func (s *TrackingService) Track(ctx context.Context, rec types.TrackingRecord) (types.TrackingRecord, error) {
	if _, err := s.assignments.Get(ctx, rec.Kind, rec.UserID, rec.ItemID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.TrackingRecord{}, fmt.Errorf("%s %w: not associated with that user", rec.Kind, store.ErrNotFound)
		}
		return types.TrackingRecord{}, err
	}

	created, err := s.repo.Insert(ctx, rec)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.TrackingRecord{}, fmt.Errorf("that tracking record %w", store.ErrDuplicate)
		}
		return types.TrackingRecord{}, err
	}

	s.events.TrackingRecorded(ctx, created)
	return created, nil
}

// GetAllForUser returns every cell the user has recorded for the kind,
// joined with item names, ordered by date then bucket rank. A user with no
// records gets an empty list; an unknown user gets ErrNotFound.
func (s *TrackingService) GetAllForUser(ctx context.Context, kind types.ItemKind, userID int) ([]types.TrackingRecord, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.ListForUser(ctx, kind, userID)
}

// GetForDay is GetAllForUser narrowed to one date.
func (s *TrackingService) GetForDay(ctx context.Context, kind types.ItemKind, userID int, date string) ([]types.TrackingRecord, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.ListForDay(ctx, kind, userID, date)
}

// GetOne looks up a single record scoped to its owner.
func (s *TrackingService) GetOne(ctx context.Context, kind types.ItemKind, recordID, userID int) (types.TrackingRecord, error) {
	return s.repo.Get(ctx, kind, recordID, userID)
}

// EditValue rewrites the cell's value and re-stamps its recorded time.
func (s *TrackingService) EditValue(ctx context.Context, kind types.ItemKind, userID, itemID int, date, bucket string, value float64) (types.TrackingRecord, error) {
	return s.repo.UpdateValue(ctx, kind, userID, itemID, date, bucket, value)
}

// DeleteOne removes a single cell.
func (s *TrackingService) DeleteOne(ctx context.Context, kind types.ItemKind, userID, itemID int, date, bucket string) error {
	if err := s.repo.DeleteOne(ctx, kind, userID, itemID, date, bucket); err != nil {
		return err
	}
	s.events.TrackingDeleted(ctx, kind, userID, itemID, date, bucket)
	return nil
}

// DeleteDay removes every cell the user recorded on the date. ErrNotFound if
// there were none.
func (s *TrackingService) DeleteDay(ctx context.Context, kind types.ItemKind, userID int, date string) error {
	if err := s.repo.DeleteDay(ctx, kind, userID, date); err != nil {
		return err
	}
	s.events.TrackingDeleted(ctx, kind, userID, 0, date, "")
	return nil
}
