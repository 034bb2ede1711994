package repo

import (
	"context"
	"database/sql"

	"strikeline/internal/domain"
)

// Catalog names the two equipment reference lists.
type Catalog string

const (
	CatalogAirframes Catalog = "airframes"
	CatalogPayloads  Catalog = "payloads"
)

func (c Catalog) table() string {
	if c == CatalogPayloads {
		return "payloads"
	}
	return "airframes"
}

func (r Repo) ListEquipment(ctx context.Context, c Catalog) ([]domain.Equipment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name FROM `+c.table()+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Equipment
	for rows.Next() {
		var e domain.Equipment
		if err := rows.Scan(&e.ID, &e.Name); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) EquipmentExists(ctx context.Context, c Catalog, name string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM `+c.table()+` WHERE name=?`, name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SeedEquipment inserts catalog entries, ignoring names already present.
func (r Repo) SeedEquipment(ctx context.Context, c Catalog, names []string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, err := r.DB.ExecContext(ctx,
			`INSERT INTO `+c.table()+`(name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
			return err
		}
	}
	return nil
}
