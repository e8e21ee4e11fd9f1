package services

import (
	"context"

	"github.com/flaretrack/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	TouchLastLogin(ctx context.Context, id int) error
	Delete(ctx context.Context, id int) error
}

// AssignmentLister is the slice of the assignment repository the user
// profile needs.
type AssignmentLister interface {
	ListForUser(ctx context.Context, kind types.ItemKind, userID int) ([]types.Assignment, error)
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo        UserRepository
	assignments AssignmentLister
}

func NewUserService(repo UserRepository, assignments AssignmentLister) *UserService {
	return &UserService{repo: repo, assignments: assignments}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, email)
}

func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	return s.repo.List(ctx)
}

func (s *UserService) Create(ctx context.Context, user types.User) (types.User, error) {
	return s.repo.Create(ctx, user)
}

func (s *UserService) Update(ctx context.Context, user types.User) (types.User, error) {
	return s.repo.Update(ctx, user)
}

// TouchLastLogin stamps the user's last successful login time.
func (s *UserService) TouchLastLogin(ctx context.Context, id int) error {
	return s.repo.TouchLastLogin(ctx, id)
}

func (s *UserService) Delete(ctx context.Context, id int) error {
	return s.repo.Delete(ctx, id)
}

// GetProfile returns the user together with their assigned diagnoses,
// symptoms, and medications.
func (s *UserService) GetProfile(ctx context.Context, id int) (types.UserProfile, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.UserProfile{}, err
	}

	profile := types.UserProfile{User: user}
	if profile.Diagnoses, err = s.assignments.ListForUser(ctx, types.ItemDiagnosis, id); err != nil {
		return types.UserProfile{}, err
	}
	if profile.Symptoms, err = s.assignments.ListForUser(ctx, types.ItemSymptom, id); err != nil {
		return types.UserProfile{}, err
	}
	if profile.Medications, err = s.assignments.ListForUser(ctx, types.ItemMedication, id); err != nil {
		return types.UserProfile{}, err
	}
	return profile, nil
}
