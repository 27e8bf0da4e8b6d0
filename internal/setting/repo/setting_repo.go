package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/arkova/catalog-core/internal/setting/entity"
)

// Repo is the repository for app.app_settings backed by PostgreSQL.
type Repo struct {
	db *sqlx.DB
}

// NewRepo constructs a new Repo with an existing *sqlx.DB connection.
func NewRepo(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

// ListBySection returns every setting row under a section path.
func (r *Repo) ListBySection(ctx context.Context, sectionPath string) ([]entity.Setting, error) {
	const q = `SELECT section_path, setting_name, value, default_value, confidentiality, description, updated_at
	           FROM app.app_settings WHERE section_path=$1 ORDER BY setting_name`
	var rows []entity.Setting
	if err := r.db.SelectContext(ctx, &rows, q, sectionPath); err != nil {
		return nil, err
	}
	return rows, nil
}

// Get returns one setting row or sql.ErrNoRows.
func (r *Repo) Get(ctx context.Context, sectionPath, settingName string) (*entity.Setting, error) {
	const q = `SELECT section_path, setting_name, value, default_value, confidentiality, description, updated_at
	           FROM app.app_settings WHERE section_path=$1 AND setting_name=$2`
	var row entity.Setting
	if err := r.db.GetContext(ctx, &row, q, sectionPath, settingName); err != nil {
		return nil, err
	}
	return &row, nil
}

// UpdateValue updates the value of an existing setting and returns affected rows.
func (r *Repo) UpdateValue(ctx context.Context, sectionPath, settingName, value string) (int64, error) {
	const q = `UPDATE app.app_settings SET value=$3, updated_at=NOW() WHERE section_path=$1 AND setting_name=$2`
	res, err := r.db.ExecContext(ctx, q, sectionPath, settingName, value)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Upsert inserts or replaces a full setting row.
func (r *Repo) Upsert(ctx context.Context, s *entity.Setting) error {
	const q = `INSERT INTO app.app_settings (section_path, setting_name, value, default_value, confidentiality, description, updated_at)
	           VALUES (:section_path, :setting_name, :value, :default_value, :confidentiality, :description, NOW())
	           ON CONFLICT (section_path, setting_name)
	           DO UPDATE SET value=EXCLUDED.value, default_value=EXCLUDED.default_value,
	                         confidentiality=EXCLUDED.confidentiality, description=EXCLUDED.description, updated_at=NOW()`
	_, err := r.db.NamedExecContext(ctx, q, s)
	return err
}
