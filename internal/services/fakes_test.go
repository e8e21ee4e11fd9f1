package services

import (
	"context"
	"fmt"
	"time"

	"github.com/flaretrack/apiserver/internal/store"
	"github.com/flaretrack/apiserver/types"
)

// In-memory repositories backing the service tests. They mirror the store
// layer's contract: ErrNotFound for missing rows, ErrDuplicate for unique
// violations.

type fakeUserRepo struct {
	users  map[int]types.User
	nextID int
}

func newFakeUserRepo(users ...types.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[int]types.User), nextID: 1}
	for _, u := range users {
		if u.ID >= r.nextID {
			r.nextID = u.ID + 1
		}
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	u, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) List(_ context.Context) ([]types.User, error) {
	out := make([]types.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, nil
}

func (r *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	for _, u := range r.users {
		if u.Email == user.Email {
			return types.User{}, store.ErrDuplicate
		}
	}
	user.ID = r.nextID
	r.nextID++
	user.RegisteredAt = time.Now()
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) Update(_ context.Context, user types.User) (types.User, error) {
	if _, ok := r.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) TouchLastLogin(_ context.Context, id int) error {
	u, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	u.LastLogin = &now
	r.users[id] = u
	return nil
}

func (r *fakeUserRepo) Delete(_ context.Context, id int) error {
	if _, ok := r.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

type fakeCatalogRepo struct {
	items  map[string]types.Item
	nextID int
}

func newFakeCatalogRepo(items ...types.Item) *fakeCatalogRepo {
	r := &fakeCatalogRepo{items: make(map[string]types.Item), nextID: 1}
	for _, it := range items {
		if it.ID >= r.nextID {
			r.nextID = it.ID + 1
		}
		r.items[catalogKey(it.Kind, it.ID)] = it
	}
	return r
}

func catalogKey(kind types.ItemKind, id int) string {
	return fmt.Sprintf("%s/%d", kind, id)
}

func (r *fakeCatalogRepo) Get(_ context.Context, kind types.ItemKind, id int) (types.Item, error) {
	it, ok := r.items[catalogKey(kind, id)]
	if !ok {
		return types.Item{}, store.ErrNotFound
	}
	return it, nil
}

func (r *fakeCatalogRepo) ResolveName(_ context.Context, kind types.ItemKind, name string) (types.Item, error) {
	for _, it := range r.items {
		if it.Kind != kind {
			continue
		}
		if it.Name == name {
			return it, nil
		}
		for _, syn := range it.Synonyms {
			if syn == name {
				return it, nil
			}
		}
	}
	return types.Item{}, store.ErrNotFound
}

func (r *fakeCatalogRepo) List(_ context.Context, kind types.ItemKind) ([]types.Item, error) {
	var out []types.Item
	for _, it := range r.items {
		if it.Kind == kind {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r *fakeCatalogRepo) Create(_ context.Context, item types.Item) (types.Item, error) {
	for _, it := range r.items {
		if it.Kind == item.Kind && it.Name == item.Name {
			return types.Item{}, store.ErrDuplicate
		}
	}
	item.ID = r.nextID
	r.nextID++
	r.items[catalogKey(item.Kind, item.ID)] = item
	return item, nil
}

func (r *fakeCatalogRepo) Update(_ context.Context, item types.Item) (types.Item, error) {
	if _, ok := r.items[catalogKey(item.Kind, item.ID)]; !ok {
		return types.Item{}, store.ErrNotFound
	}
	r.items[catalogKey(item.Kind, item.ID)] = item
	return item, nil
}

func (r *fakeCatalogRepo) Delete(_ context.Context, kind types.ItemKind, id int) error {
	if _, ok := r.items[catalogKey(kind, id)]; !ok {
		return store.ErrNotFound
	}
	delete(r.items, catalogKey(kind, id))
	return nil
}

type fakeAssignmentRepo struct {
	assignments map[string]types.Assignment
}

func newFakeAssignmentRepo(assignments ...types.Assignment) *fakeAssignmentRepo {
	r := &fakeAssignmentRepo{assignments: make(map[string]types.Assignment)}
	for _, a := range assignments {
		r.assignments[assignmentKey(a.Kind, a.UserID, a.ItemID)] = a
	}
	return r
}

func assignmentKey(kind types.ItemKind, userID, itemID int) string {
	return fmt.Sprintf("%s/%d/%d", kind, userID, itemID)
}

func (r *fakeAssignmentRepo) Get(_ context.Context, kind types.ItemKind, userID, itemID int) (types.Assignment, error) {
	a, ok := r.assignments[assignmentKey(kind, userID, itemID)]
	if !ok {
		return types.Assignment{}, store.ErrNotFound
	}
	return a, nil
}

func (r *fakeAssignmentRepo) ListForUser(_ context.Context, kind types.ItemKind, userID int) ([]types.Assignment, error) {
	var out []types.Assignment
	for _, a := range r.assignments {
		if a.Kind == kind && a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAssignmentRepo) Create(_ context.Context, a types.Assignment) (types.Assignment, error) {
	key := assignmentKey(a.Kind, a.UserID, a.ItemID)
	if _, ok := r.assignments[key]; ok {
		return types.Assignment{}, store.ErrDuplicate
	}
	r.assignments[key] = a
	return a, nil
}

func (r *fakeAssignmentRepo) UpdateMetadata(_ context.Context, a types.Assignment) (types.Assignment, error) {
	key := assignmentKey(a.Kind, a.UserID, a.ItemID)
	if _, ok := r.assignments[key]; !ok {
		return types.Assignment{}, store.ErrNotFound
	}
	r.assignments[key] = a
	return a, nil
}

func (r *fakeAssignmentRepo) Repoint(_ context.Context, kind types.ItemKind, userID, oldItemID, newItemID int) error {
	oldKey := assignmentKey(kind, userID, oldItemID)
	a, ok := r.assignments[oldKey]
	if !ok {
		return store.ErrNotFound
	}
	newKey := assignmentKey(kind, userID, newItemID)
	if _, ok := r.assignments[newKey]; ok {
		return store.ErrDuplicate
	}
	delete(r.assignments, oldKey)
	a.ItemID = newItemID
	r.assignments[newKey] = a
	return nil
}

func (r *fakeAssignmentRepo) Delete(_ context.Context, kind types.ItemKind, userID, itemID int) error {
	key := assignmentKey(kind, userID, itemID)
	if _, ok := r.assignments[key]; !ok {
		return store.ErrNotFound
	}
	delete(r.assignments, key)
	return nil
}

type fakeTrackingRepo struct {
	records map[string]types.TrackingRecord
	nextID  int
}

func newFakeTrackingRepo() *fakeTrackingRepo {
	return &fakeTrackingRepo{records: make(map[string]types.TrackingRecord), nextID: 1}
}

func cellKey(rec types.TrackingRecord) string {
	return fmt.Sprintf("%s/%d/%d/%s/%s", rec.Kind, rec.UserID, rec.ItemID, rec.Date, rec.Bucket)
}

func (r *fakeTrackingRepo) Insert(_ context.Context, rec types.TrackingRecord) (types.TrackingRecord, error) {
	key := cellKey(rec)
	if _, ok := r.records[key]; ok {
		return types.TrackingRecord{}, store.ErrDuplicate
	}
	rec.ID = r.nextID
	r.nextID++
	rec.RecordedAt = time.Now()
	r.records[key] = rec
	return rec, nil
}

func (r *fakeTrackingRepo) ListForUser(_ context.Context, kind types.ItemKind, userID int) ([]types.TrackingRecord, error) {
	out := []types.TrackingRecord{}
	for _, rec := range r.records {
		if rec.Kind == kind && rec.UserID == userID {
			out = append(out, rec)
		}
	}
	types.SortTrackingRecords(out)
	return out, nil
}

func (r *fakeTrackingRepo) ListForDay(_ context.Context, kind types.ItemKind, userID int, date string) ([]types.TrackingRecord, error) {
	out := []types.TrackingRecord{}
	for _, rec := range r.records {
		if rec.Kind == kind && rec.UserID == userID && rec.Date == date {
			out = append(out, rec)
		}
	}
	types.SortTrackingRecords(out)
	return out, nil
}

func (r *fakeTrackingRepo) Get(_ context.Context, kind types.ItemKind, recordID, userID int) (types.TrackingRecord, error) {
	for _, rec := range r.records {
		if rec.Kind == kind && rec.ID == recordID && rec.UserID == userID {
			return rec, nil
		}
	}
	return types.TrackingRecord{}, store.ErrNotFound
}

func (r *fakeTrackingRepo) UpdateValue(_ context.Context, kind types.ItemKind, userID, itemID int, date, bucket string, value float64) (types.TrackingRecord, error) {
	key := cellKey(types.TrackingRecord{Kind: kind, UserID: userID, ItemID: itemID, Date: date, Bucket: bucket})
	rec, ok := r.records[key]
	if !ok {
		return types.TrackingRecord{}, store.ErrNotFound
	}
	rec.Value = value
	rec.RecordedAt = time.Now()
	r.records[key] = rec
	return rec, nil
}

func (r *fakeTrackingRepo) DeleteOne(_ context.Context, kind types.ItemKind, userID, itemID int, date, bucket string) error {
	key := cellKey(types.TrackingRecord{Kind: kind, UserID: userID, ItemID: itemID, Date: date, Bucket: bucket})
	if _, ok := r.records[key]; !ok {
		return store.ErrNotFound
	}
	delete(r.records, key)
	return nil
}

func (r *fakeTrackingRepo) DeleteDay(_ context.Context, kind types.ItemKind, userID int, date string) error {
	deleted := false
	for key, rec := range r.records {
		if rec.Kind == kind && rec.UserID == userID && rec.Date == date {
			delete(r.records, key)
			deleted = true
		}
	}
	if !deleted {
		return store.ErrNotFound
	}
	return nil
}
