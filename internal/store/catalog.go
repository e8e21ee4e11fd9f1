package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/flaretrack/apiserver/types"
	"github.com/lib/pq"
)

// kindSpec maps an item kind onto its table layout. The three catalog
// variants share one persistence contract; only the identifiers differ.
type kindSpec struct {
	table       string
	idCol       string
	nameCol     string
	hasSynonyms bool
}

var kindSpecs = map[types.ItemKind]kindSpec{
	types.ItemDiagnosis:  {table: "diagnoses", idCol: "diagnosis_id", nameCol: "diagnosis", hasSynonyms: true},
	types.ItemSymptom:    {table: "symptoms", idCol: "symptom_id", nameCol: "symptom"},
	types.ItemMedication: {table: "medications", idCol: "med_id", nameCol: "medication"},
}

func specFor(kind types.ItemKind) (kindSpec, error) {
	spec, ok := kindSpecs[kind]
	if !ok {
		return kindSpec{}, fmt.Errorf("unknown item kind %q", kind)
	}
	return spec, nil
}

// CatalogRepository handles persistence for the three trackable-item tables.
type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) Get(ctx context.Context, kind types.ItemKind, id int) (types.Item, error) {
	spec, err := specFor(kind)
	if err != nil {
		return types.Item{}, err
	}

	item := types.Item{Kind: kind}
	if spec.hasSynonyms {
		query := fmt.Sprintf(`SELECT %s, %s, synonyms FROM %s WHERE %s = $1`,
			spec.idCol, spec.nameCol, spec.table, spec.idCol)
		err = r.db.QueryRowContext(ctx, query, id).Scan(&item.ID, &item.Name, pq.Array(&item.Synonyms))
	} else {
		query := fmt.Sprintf(`SELECT %s, %s FROM %s WHERE %s = $1`,
			spec.idCol, spec.nameCol, spec.table, spec.idCol)
		err = r.db.QueryRowContext(ctx, query, id).Scan(&item.ID, &item.Name)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Item{}, ErrNotFound
		}
		return types.Item{}, err
	}
	return item, nil
}

// ResolveName finds the item whose canonical name or synonym set contains
// name. Duplicate checks go through this so synonyms collide too.
func (r *CatalogRepository) ResolveName(ctx context.Context, kind types.ItemKind, name string) (types.Item, error) {
	spec, err := specFor(kind)
	if err != nil {
		return types.Item{}, err
	}

	item := types.Item{Kind: kind}
	if spec.hasSynonyms {
		query := fmt.Sprintf(`SELECT %s, %s, synonyms FROM %s WHERE %s = $1 OR $1 = ANY(synonyms)`,
			spec.idCol, spec.nameCol, spec.table, spec.nameCol)
		err = r.db.QueryRowContext(ctx, query, name).Scan(&item.ID, &item.Name, pq.Array(&item.Synonyms))
	} else {
		query := fmt.Sprintf(`SELECT %s, %s FROM %s WHERE %s = $1`,
			spec.idCol, spec.nameCol, spec.table, spec.nameCol)
		err = r.db.QueryRowContext(ctx, query, name).Scan(&item.ID, &item.Name)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Item{}, ErrNotFound
		}
		return types.Item{}, err
	}
	return item, nil
}

func (r *CatalogRepository) List(ctx context.Context, kind types.ItemKind) ([]types.Item, error) {
	spec, err := specFor(kind)
	if err != nil {
		return nil, err
	}

	var query string
	if spec.hasSynonyms {
		query = fmt.Sprintf(`SELECT %s, %s, synonyms FROM %s ORDER BY %s`,
			spec.idCol, spec.nameCol, spec.table, spec.nameCol)
	} else {
		query = fmt.Sprintf(`SELECT %s, %s FROM %s ORDER BY %s`,
			spec.idCol, spec.nameCol, spec.table, spec.nameCol)
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]types.Item, 0)
	for rows.Next() {
		item := types.Item{Kind: kind}
		if spec.hasSynonyms {
			err = rows.Scan(&item.ID, &item.Name, pq.Array(&item.Synonyms))
		} else {
			err = rows.Scan(&item.ID, &item.Name)
		}
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *CatalogRepository) Create(ctx context.Context, item types.Item) (types.Item, error) {
	spec, err := specFor(item.Kind)
	if err != nil {
		return types.Item{}, err
	}

	if spec.hasSynonyms {
		synonyms := item.Synonyms
		if synonyms == nil {
			synonyms = []string{}
		}
		query := fmt.Sprintf(`INSERT INTO %s (%s, synonyms) VALUES ($1, $2) RETURNING %s`,
			spec.table, spec.nameCol, spec.idCol)
		err = r.db.QueryRowContext(ctx, query, item.Name, pq.Array(synonyms)).Scan(&item.ID)
	} else {
		query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1) RETURNING %s`,
			spec.table, spec.nameCol, spec.idCol)
		err = r.db.QueryRowContext(ctx, query, item.Name).Scan(&item.ID)
	}
	if err != nil {
		return types.Item{}, translate(err)
	}
	return item, nil
}

// Update rewrites the item's name and, for diagnoses, its synonym set.
func (r *CatalogRepository) Update(ctx context.Context, item types.Item) (types.Item, error) {
	spec, err := specFor(item.Kind)
	if err != nil {
		return types.Item{}, err
	}

	var result sql.Result
	if spec.hasSynonyms {
		synonyms := item.Synonyms
		if synonyms == nil {
			synonyms = []string{}
		}
		query := fmt.Sprintf(`UPDATE %s SET %s = $1, synonyms = $2 WHERE %s = $3`,
			spec.table, spec.nameCol, spec.idCol)
		result, err = r.db.ExecContext(ctx, query, item.Name, pq.Array(synonyms), item.ID)
	} else {
		query := fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE %s = $2`,
			spec.table, spec.nameCol, spec.idCol)
		result, err = r.db.ExecContext(ctx, query, item.Name, item.ID)
	}
	if err != nil {
		return types.Item{}, translate(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Item{}, err
	}
	if affected == 0 {
		return types.Item{}, ErrNotFound
	}
	return item, nil
}

func (r *CatalogRepository) Delete(ctx context.Context, kind types.ItemKind, id int) error {
	spec, err := specFor(kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, spec.table, spec.idCol)
	result, err := r.db.ExecContext(ctx, query, id)
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
