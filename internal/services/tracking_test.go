package services

import (
	"context"
	"testing"

	"github.com/flaretrack/apiserver/internal/store"
	"github.com/flaretrack/apiserver/types"
	"github.com/stretchr/testify/require"
)

func newTrackingFixture(t *testing.T) (*TrackingService, *fakeTrackingRepo) {
	t.Helper()

	repo := newFakeTrackingRepo()
	assignments := newFakeAssignmentRepo(
		types.Assignment{UserID: 1, ItemID: 1, Kind: types.ItemSymptom},
		types.Assignment{UserID: 1, ItemID: 2, Kind: types.ItemMedication},
	)
	svc := NewTrackingService(newFakeUserRepo(testUser(1)), assignments, repo, nil)
	return svc, repo
}

func TestTrack(t *testing.T) {
	t.Run("records a cell", func(t *testing.T) {
		svc, _ := newTrackingFixture(t)

		rec, err := svc.Track(context.Background(), types.TrackingRecord{
			UserID: 1, ItemID: 1, Kind: types.ItemSymptom,
			Date: "2026-08-01", Bucket: "12-4 PM", Value: 3,
		})
		require.NoError(t, err)
		require.NotZero(t, rec.ID)
		require.False(t, rec.RecordedAt.IsZero())
	})

	t.Run("unassigned item reports not associated, not duplicate", func(t *testing.T) {
		svc, _ := newTrackingFixture(t)

		_, err := svc.Track(context.Background(), types.TrackingRecord{
			UserID: 1, ItemID: 9, Kind: types.ItemSymptom,
			Date: "2026-08-01", Bucket: "12-4 PM", Value: 3,
		})
		require.ErrorIs(t, err, store.ErrNotFound)
		require.Contains(t, err.Error(), "not associated")
	})

	t.Run("second entry for the same cell rejected", func(t *testing.T) {
		svc, _ := newTrackingFixture(t)

		cell := types.TrackingRecord{
			UserID: 1, ItemID: 1, Kind: types.ItemSymptom,
			Date: "2026-08-01", Bucket: "12-4 PM", Value: 3,
		}
		_, err := svc.Track(context.Background(), cell)
		require.NoError(t, err)

		cell.Value = 5
		_, err = svc.Track(context.Background(), cell)
		require.ErrorIs(t, err, store.ErrDuplicate)
	})

	t.Run("same date in a different bucket is fine", func(t *testing.T) {
		svc, _ := newTrackingFixture(t)

		cell := types.TrackingRecord{
			UserID: 1, ItemID: 1, Kind: types.ItemSymptom,
			Date: "2026-08-01", Bucket: "12-4 PM", Value: 3,
		}
		_, err := svc.Track(context.Background(), cell)
		require.NoError(t, err)

		cell.Bucket = "4-8 PM"
		_, err = svc.Track(context.Background(), cell)
		require.NoError(t, err)
	})
}

func TestGetAllForUser(t *testing.T) {
	svc, _ := newTrackingFixture(t)

	for _, cell := range []types.TrackingRecord{
		{UserID: 1, ItemID: 1, Kind: types.ItemSymptom, Date: "2026-08-02", Bucket: "12-8 AM", Value: 2},
		{UserID: 1, ItemID: 1, Kind: types.ItemSymptom, Date: "2026-08-01", Bucket: "8 PM-12 AM", Value: 4},
		{UserID: 1, ItemID: 1, Kind: types.ItemSymptom, Date: "2026-08-01", Bucket: "12-8 AM", Value: 1},
	} {
		_, err := svc.Track(context.Background(), cell)
		require.NoError(t, err)
	}

	records, err := svc.GetAllForUser(context.Background(), types.ItemSymptom, 1)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "2026-08-01", records[0].Date)
	require.Equal(t, "12-8 AM", records[0].Bucket)
	require.Equal(t, "8 PM-12 AM", records[1].Bucket)
	require.Equal(t, "2026-08-02", records[2].Date)

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.GetAllForUser(context.Background(), types.ItemSymptom, 9)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("no records is an empty list, not an error", func(t *testing.T) {
		records, err := svc.GetAllForUser(context.Background(), types.ItemMedication, 1)
		require.NoError(t, err)
		require.Empty(t, records)
	})
}

func TestEditValue(t *testing.T) {
	svc, _ := newTrackingFixture(t)

	_, err := svc.Track(context.Background(), types.TrackingRecord{
		UserID: 1, ItemID: 2, Kind: types.ItemMedication,
		Date: "2026-08-01", Bucket: "AM", Value: 1,
	})
	require.NoError(t, err)

	rec, err := svc.EditValue(context.Background(), types.ItemMedication, 1, 2, "2026-08-01", "AM", 2)
	require.NoError(t, err)
	require.Equal(t, 2.0, rec.Value)

	_, err = svc.EditValue(context.Background(), types.ItemMedication, 1, 2, "2026-08-01", "PM", 2)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteDay(t *testing.T) {
	svc, _ := newTrackingFixture(t)

	for _, bucket := range []string{"12-8 AM", "12-4 PM"} {
		_, err := svc.Track(context.Background(), types.TrackingRecord{
			UserID: 1, ItemID: 1, Kind: types.ItemSymptom,
			Date: "2026-08-01", Bucket: bucket, Value: 3,
		})
		require.NoError(t, err)
	}
	_, err := svc.Track(context.Background(), types.TrackingRecord{
		UserID: 1, ItemID: 1, Kind: types.ItemSymptom,
		Date: "2026-08-02", Bucket: "12-8 AM", Value: 3,
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteDay(context.Background(), types.ItemSymptom, 1, "2026-08-01"))

	records, err := svc.GetAllForUser(context.Background(), types.ItemSymptom, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "2026-08-02", records[0].Date)

	// Deleting an empty day reports not found.
	require.ErrorIs(t, svc.DeleteDay(context.Background(), types.ItemSymptom, 1, "2026-08-01"), store.ErrNotFound)
}

func TestDeleteOne(t *testing.T) {
	svc, _ := newTrackingFixture(t)

	_, err := svc.Track(context.Background(), types.TrackingRecord{
		UserID: 1, ItemID: 1, Kind: types.ItemSymptom,
		Date: "2026-08-01", Bucket: "12-4 PM", Value: 3,
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteOne(context.Background(), types.ItemSymptom, 1, 1, "2026-08-01", "12-4 PM"))
	require.ErrorIs(t, svc.DeleteOne(context.Background(), types.ItemSymptom, 1, 1, "2026-08-01", "12-4 PM"), store.ErrNotFound)
}

func TestGetOne(t *testing.T) {
	svc, _ := newTrackingFixture(t)

	created, err := svc.Track(context.Background(), types.TrackingRecord{
		UserID: 1, ItemID: 1, Kind: types.ItemSymptom,
		Date: "2026-08-01", Bucket: "12-4 PM", Value: 3,
	})
	require.NoError(t, err)

	rec, err := svc.GetOne(context.Background(), types.ItemSymptom, created.ID, 1)
	require.NoError(t, err)
	require.Equal(t, created.ID, rec.ID)

	// Scoped to the owner: another user cannot see the record.
	_, err = svc.GetOne(context.Background(), types.ItemSymptom, created.ID, 2)
	require.ErrorIs(t, err, store.ErrNotFound)
}
