package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/flaretrack/apiserver/types"
	"github.com/lib/pq"
)

// joinSpec maps an item kind onto its user-assignment table.
type joinSpec struct {
	table   string
	itemCol string
}

var joinSpecs = map[types.ItemKind]joinSpec{
	types.ItemDiagnosis:  {table: "users_diagnoses", itemCol: "diagnosis_id"},
	types.ItemSymptom:    {table: "users_symptoms", itemCol: "symptom_id"},
	types.ItemMedication: {table: "users_medications", itemCol: "med_id"},
}

// AssignmentRepository handles persistence for user-item assignments.
type AssignmentRepository struct {
	db *sql.DB
}

func NewAssignmentRepository(db *sql.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func (r *AssignmentRepository) Get(ctx context.Context, kind types.ItemKind, userID, itemID int) (types.Assignment, error) {
	a := types.Assignment{UserID: userID, ItemID: itemID, Kind: kind}

	var err error
	switch kind {
	case types.ItemDiagnosis:
		const query = `
			SELECT keywords
			FROM users_diagnoses
			WHERE user_id = $1 AND diagnosis_id = $2`
		err = r.db.QueryRowContext(ctx, query, userID, itemID).Scan(pq.Array(&a.Keywords))
	case types.ItemSymptom:
		const query = `
			SELECT user_id
			FROM users_symptoms
			WHERE user_id = $1 AND symptom_id = $2`
		err = r.db.QueryRowContext(ctx, query, userID, itemID).Scan(&a.UserID)
	case types.ItemMedication:
		const query = `
			SELECT dosage_num, dosage_unit, time_of_day
			FROM users_medications
			WHERE user_id = $1 AND med_id = $2`
		var num sql.NullFloat64
		var unit sql.NullString
		err = r.db.QueryRowContext(ctx, query, userID, itemID).Scan(&num, &unit, pq.Array(&a.TimesOfDay))
		a.DosageNum = num.Float64
		a.DosageUnit = unit.String
	default:
		return types.Assignment{}, fmt.Errorf("unknown item kind %q", kind)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Assignment{}, ErrNotFound
		}
		return types.Assignment{}, err
	}
	return a, nil
}

// ListForUser returns the user's assignments of one kind, joined with the
// item name, ordered by name.
func (r *AssignmentRepository) ListForUser(ctx context.Context, kind types.ItemKind, userID int) ([]types.Assignment, error) {
	var query string
	switch kind {
	case types.ItemDiagnosis:
		query = `
			SELECT ud.user_id, ud.diagnosis_id, d.diagnosis, ud.keywords
			FROM users_diagnoses AS ud
			INNER JOIN diagnoses AS d ON d.diagnosis_id = ud.diagnosis_id
			WHERE ud.user_id = $1
			ORDER BY d.diagnosis`
	case types.ItemSymptom:
		query = `
			SELECT us.user_id, us.symptom_id, s.symptom
			FROM users_symptoms AS us
			INNER JOIN symptoms AS s ON s.symptom_id = us.symptom_id
			WHERE us.user_id = $1
			ORDER BY s.symptom`
	case types.ItemMedication:
		query = `
			SELECT um.user_id, um.med_id, m.medication, um.dosage_num, um.dosage_unit, um.time_of_day
			FROM users_medications AS um
			INNER JOIN medications AS m ON m.med_id = um.med_id
			WHERE um.user_id = $1
			ORDER BY m.medication`
	default:
		return nil, fmt.Errorf("unknown item kind %q", kind)
	}

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assignments := make([]types.Assignment, 0)
	for rows.Next() {
		a := types.Assignment{Kind: kind}
		switch kind {
		case types.ItemDiagnosis:
			err = rows.Scan(&a.UserID, &a.ItemID, &a.ItemName, pq.Array(&a.Keywords))
		case types.ItemSymptom:
			err = rows.Scan(&a.UserID, &a.ItemID, &a.ItemName)
		case types.ItemMedication:
			var num sql.NullFloat64
			var unit sql.NullString
			err = rows.Scan(&a.UserID, &a.ItemID, &a.ItemName, &num, &unit, pq.Array(&a.TimesOfDay))
			a.DosageNum = num.Float64
			a.DosageUnit = unit.String
		}
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

func (r *AssignmentRepository) Create(ctx context.Context, a types.Assignment) (types.Assignment, error) {
	var err error
	switch a.Kind {
	case types.ItemDiagnosis:
		keywords := a.Keywords
		if keywords == nil {
			keywords = []string{}
		}
		const query = `
			INSERT INTO users_diagnoses (user_id, diagnosis_id, keywords)
			VALUES ($1, $2, $3)`
		_, err = r.db.ExecContext(ctx, query, a.UserID, a.ItemID, pq.Array(keywords))
	case types.ItemSymptom:
		const query = `
			INSERT INTO users_symptoms (user_id, symptom_id)
			VALUES ($1, $2)`
		_, err = r.db.ExecContext(ctx, query, a.UserID, a.ItemID)
	case types.ItemMedication:
		timesOfDay := a.TimesOfDay
		if timesOfDay == nil {
			timesOfDay = []string{}
		}
		const query = `
			INSERT INTO users_medications (user_id, med_id, dosage_num, dosage_unit, time_of_day)
			VALUES ($1, $2, $3, $4, $5)`
		_, err = r.db.ExecContext(ctx, query, a.UserID, a.ItemID, a.DosageNum, a.DosageUnit, pq.Array(timesOfDay))
	default:
		return types.Assignment{}, fmt.Errorf("unknown item kind %q", a.Kind)
	}
	if err != nil {
		return types.Assignment{}, translate(err)
	}
	return a, nil
}

// UpdateMetadata rewrites the assignment's kind-specific metadata. Keyword
// merging happens in the service; the stored set is replaced wholesale here.
func (r *AssignmentRepository) UpdateMetadata(ctx context.Context, a types.Assignment) (types.Assignment, error) {
	var result sql.Result
	var err error
	switch a.Kind {
	case types.ItemDiagnosis:
		keywords := a.Keywords
		if keywords == nil {
			keywords = []string{}
		}
		const query = `
			UPDATE users_diagnoses
			SET keywords = $1
			WHERE user_id = $2 AND diagnosis_id = $3`
		result, err = r.db.ExecContext(ctx, query, pq.Array(keywords), a.UserID, a.ItemID)
	case types.ItemMedication:
		timesOfDay := a.TimesOfDay
		if timesOfDay == nil {
			timesOfDay = []string{}
		}
		const query = `
			UPDATE users_medications
			SET dosage_num = $1,
				dosage_unit = $2,
				time_of_day = $3
			WHERE user_id = $4 AND med_id = $5`
		result, err = r.db.ExecContext(ctx, query, a.DosageNum, a.DosageUnit, pq.Array(timesOfDay), a.UserID, a.ItemID)
	default:
		return types.Assignment{}, fmt.Errorf("item kind %q has no assignment metadata", a.Kind)
	}
	if err != nil {
		return types.Assignment{}, translate(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Assignment{}, err
	}
	if affected == 0 {
		return types.Assignment{}, ErrNotFound
	}
	return a, nil
}

// Repoint moves the assignment from oldItemID to newItemID. Tracking cells
// reference the pair with ON UPDATE CASCADE, so they follow without row
// migration.
func (r *AssignmentRepository) Repoint(ctx context.Context, kind types.ItemKind, userID, oldItemID, newItemID int) error {
	spec, ok := joinSpecs[kind]
	if !ok {
		return fmt.Errorf("unknown item kind %q", kind)
	}

	query := fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE user_id = $2 AND %s = $3`,
		spec.table, spec.itemCol, spec.itemCol)
	result, err := r.db.ExecContext(ctx, query, newItemID, userID, oldItemID)
	if err != nil {
		return translate(err)
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

// Delete removes the assignment. Tracking cells for the pair go with it via
// ON DELETE CASCADE.
func (r *AssignmentRepository) Delete(ctx context.Context, kind types.ItemKind, userID, itemID int) error {
	spec, ok := joinSpecs[kind]
	if !ok {
		return fmt.Errorf("unknown item kind %q", kind)
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1 AND %s = $2`, spec.table, spec.itemCol)
	result, err := r.db.ExecContext(ctx, query, userID, itemID)
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
