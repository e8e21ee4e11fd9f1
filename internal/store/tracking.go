package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/flaretrack/apiserver/types"
)

// trackSpec maps an item kind onto its tracking table layout.
type trackSpec struct {
	table       string
	idCol       string
	itemCol     string
	bucketCol   string
	valueCol    string
	itemTable   string
	itemNameCol string
	buckets     []string
}

var trackSpecs = map[types.ItemKind]trackSpec{
	types.ItemSymptom: {
		table:       "symptom_tracking",
		idCol:       "symtrack_id",
		itemCol:     "symptom_id",
		bucketCol:   "timespan",
		valueCol:    "severity",
		itemTable:   "symptoms",
		itemNameCol: "symptom",
		buckets:     types.SymptomTimespans,
	},
	types.ItemMedication: {
		table:       "medication_tracking",
		idCol:       "medtrack_id",
		itemCol:     "med_id",
		bucketCol:   "time_of_day",
		valueCol:    "number",
		itemTable:   "medications",
		itemNameCol: "medication",
		buckets:     types.MedicationTimes,
	},
}

func trackSpecFor(kind types.ItemKind) (trackSpec, error) {
	spec, ok := trackSpecs[kind]
	if !ok {
		return trackSpec{}, fmt.Errorf("item kind %q has no tracking table", kind)
	}
	return spec, nil
}

// bucketOrder renders the CASE expression that sorts bucket labels
// chronologically. Lexicographic order would interleave the day.
func (s trackSpec) bucketOrder() string {
	var b strings.Builder
	b.WriteString("CASE")
	for i, label := range s.buckets {
		fmt.Fprintf(&b, " WHEN t.%s = '%s' THEN %d", s.bucketCol, label, i+1)
	}
	b.WriteString(" END")
	return b.String()
}

// TrackingRepository handles persistence for tracking cells.
type TrackingRepository struct {
	db *sql.DB
}

func NewTrackingRepository(db *sql.DB) *TrackingRepository {
	return &TrackingRepository{db: db}
}

// Insert creates the cell in a single statement. The table's unique
// constraint rejects a second record for the same (user, item, date, bucket)
// and surfaces as ErrDuplicate, so concurrent writers race safely.
func (r *TrackingRepository) Insert(ctx context.Context, rec types.TrackingRecord) (types.TrackingRecord, error) {
	spec, err := trackSpecFor(rec.Kind)
	if err != nil {
		return types.TrackingRecord{}, err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, %s, track_date, %s, %s)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING %s, tracked_at`,
		spec.table, spec.itemCol, spec.bucketCol, spec.valueCol, spec.idCol)
	if err := r.db.QueryRowContext(
		ctx,
		query,
		rec.UserID,
		rec.ItemID,
		rec.Date,
		rec.Bucket,
		rec.Value,
	).Scan(&rec.ID, &rec.RecordedAt); err != nil {
		return types.TrackingRecord{}, translate(err)
	}
	return rec, nil
}

func (r *TrackingRepository) ListForUser(ctx context.Context, kind types.ItemKind, userID int) ([]types.TrackingRecord, error) {
	spec, err := trackSpecFor(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT t.%s, t.user_id, t.%s, i.%s, t.track_date::text, t.%s, t.%s, t.tracked_at
		FROM %s AS t
		INNER JOIN %s AS i ON i.%s = t.%s
		WHERE t.user_id = $1
		ORDER BY t.track_date, %s`,
		spec.idCol, spec.itemCol, spec.itemNameCol, spec.bucketCol, spec.valueCol,
		spec.table,
		spec.itemTable, spec.itemCol, spec.itemCol,
		spec.bucketOrder())
	return r.queryRecords(ctx, kind, query, userID)
}

func (r *TrackingRepository) ListForDay(ctx context.Context, kind types.ItemKind, userID int, date string) ([]types.TrackingRecord, error) {
	spec, err := trackSpecFor(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT t.%s, t.user_id, t.%s, i.%s, t.track_date::text, t.%s, t.%s, t.tracked_at
		FROM %s AS t
		INNER JOIN %s AS i ON i.%s = t.%s
		WHERE t.user_id = $1 AND t.track_date = $2
		ORDER BY %s`,
		spec.idCol, spec.itemCol, spec.itemNameCol, spec.bucketCol, spec.valueCol,
		spec.table,
		spec.itemTable, spec.itemCol, spec.itemCol,
		spec.bucketOrder())
	return r.queryRecords(ctx, kind, query, userID, date)
}

// Get looks a record up by id scoped to its owner, so one user's record ids
// leak nothing to another user.
func (r *TrackingRepository) Get(ctx context.Context, kind types.ItemKind, recordID, userID int) (types.TrackingRecord, error) {
	spec, err := trackSpecFor(kind)
	if err != nil {
		return types.TrackingRecord{}, err
	}

	query := fmt.Sprintf(`
		SELECT t.%s, t.user_id, t.%s, i.%s, t.track_date::text, t.%s, t.%s, t.tracked_at
		FROM %s AS t
		INNER JOIN %s AS i ON i.%s = t.%s
		WHERE t.%s = $1 AND t.user_id = $2`,
		spec.idCol, spec.itemCol, spec.itemNameCol, spec.bucketCol, spec.valueCol,
		spec.table,
		spec.itemTable, spec.itemCol, spec.itemCol,
		spec.idCol)

	rec := types.TrackingRecord{Kind: kind}
	if err := r.db.QueryRowContext(ctx, query, recordID, userID).Scan(
		&rec.ID,
		&rec.UserID,
		&rec.ItemID,
		&rec.ItemName,
		&rec.Date,
		&rec.Bucket,
		&rec.Value,
		&rec.RecordedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.TrackingRecord{}, ErrNotFound
		}
		return types.TrackingRecord{}, err
	}
	return rec, nil
}

// UpdateValue rewrites the cell's value and re-stamps tracked_at.
func (r *TrackingRepository) UpdateValue(ctx context.Context, kind types.ItemKind, userID, itemID int, date, bucket string, value float64) (types.TrackingRecord, error) {
	spec, err := trackSpecFor(kind)
	if err != nil {
		return types.TrackingRecord{}, err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = $1,
			tracked_at = CURRENT_TIMESTAMP
		WHERE user_id = $2 AND %s = $3 AND track_date = $4 AND %s = $5
		RETURNING %s, tracked_at`,
		spec.table, spec.valueCol, spec.itemCol, spec.bucketCol, spec.idCol)

	rec := types.TrackingRecord{
		UserID: userID,
		ItemID: itemID,
		Kind:   kind,
		Date:   date,
		Bucket: bucket,
		Value:  value,
	}
	if err := r.db.QueryRowContext(ctx, query, value, userID, itemID, date, bucket).Scan(&rec.ID, &rec.RecordedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.TrackingRecord{}, ErrNotFound
		}
		return types.TrackingRecord{}, err
	}
	return rec, nil
}

func (r *TrackingRepository) DeleteOne(ctx context.Context, kind types.ItemKind, userID, itemID int, date, bucket string) error {
	spec, err := trackSpecFor(kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE user_id = $1 AND %s = $2 AND track_date = $3 AND %s = $4`,
		spec.table, spec.itemCol, spec.bucketCol)
	result, err := r.db.ExecContext(ctx, query, userID, itemID, date, bucket)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDay removes every cell the user logged on one date.
func (r *TrackingRepository) DeleteDay(ctx context.Context, kind types.ItemKind, userID int, date string) error {
	spec, err := trackSpecFor(kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1 AND track_date = $2`, spec.table)
	result, err := r.db.ExecContext(ctx, query, userID, date)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TrackingRepository) queryRecords(ctx context.Context, kind types.ItemKind, query string, args ...any) ([]types.TrackingRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]types.TrackingRecord, 0)
	for rows.Next() {
		rec := types.TrackingRecord{Kind: kind}
		if err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.ItemID,
			&rec.ItemName,
			&rec.Date,
			&rec.Bucket,
			&rec.Value,
			&rec.RecordedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
