package repos

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"biciadmin/internal/domain"
)

var ErrNotFound = errors.New("not found")

type ProductRepo struct{ db *sqlx.DB }

func NewProductRepo(db *sqlx.DB) *ProductRepo { return &ProductRepo{db: db} }

type productRow struct {
	ID           int            `db:"id"`
	NameJSON     string         `db:"name_json"`
	DescJSON     string         `db:"description_json"`
	Brand        string         `db:"brand"`
	VariantsJSON string         `db:"variants_json"`
	ImagesJSON   string         `db:"images_json"`
	MLConfigJSON sql.NullString `db:"ml_config_json"`
	CreatedAt    string         `db:"created_at"`
	UpdatedAt    sql.NullString `db:"updated_at"`
}

func (r productRow) toDomain() (domain.Product, error) {
	p := domain.Product{ID: r.ID, Brand: r.Brand}
	if err := json.Unmarshal([]byte(r.NameJSON), &p.Name); err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(r.DescJSON), &p.Description); err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(r.VariantsJSON), &p.Variants); err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(r.ImagesJSON), &p.Images); err != nil {
		return p, err
	}
	if r.MLConfigJSON.Valid && r.MLConfigJSON.String != "" {
		cfg := &domain.MigrationConfig{}
		if err := json.Unmarshal([]byte(r.MLConfigJSON.String), cfg); err != nil {
			return p, err
		}
		p.MercadoLibreConfig = cfg
	}
	return p, nil
}

func (r *ProductRepo) List() ([]domain.Product, error) {
	var rows []productRow
	err := r.db.Select(&rows, `
	  SELECT id, name_json, description_json, brand, variants_json, images_json,
	         ml_config_json, created_at, updated_at
	  FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		p, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *ProductRepo) Get(id int) (*domain.Product, error) {
	var row productRow
	err := r.db.Get(&row, `
	  SELECT id, name_json, description_json, brand, variants_json, images_json,
	         ml_config_json, created_at, updated_at
	  FROM products WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProductRepo) Create(p *domain.Product) error {
	name, desc, variants, images, cfg, err := marshalProduct(p)
	if err != nil {
		return err
	}
	res, err := r.db.Exec(`
	  INSERT INTO products(name_json, description_json, brand, variants_json, images_json, ml_config_json)
	  VALUES(?,?,?,?,?,?)`, name, desc, p.Brand, variants, images, cfg)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = int(id)
	return nil
}

func (r *ProductRepo) Update(p *domain.Product) error {
	name, desc, variants, images, cfg, err := marshalProduct(p)
	if err != nil {
		return err
	}
	res, err := r.db.Exec(`
	  UPDATE products
	  SET name_json=?, description_json=?, brand=?, variants_json=?, images_json=?,
	      ml_config_json=?, updated_at=?
	  WHERE id=?`, name, desc, p.Brand, variants, images, cfg,
		time.Now().UTC().Format(time.RFC3339), p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ProductRepo) Delete(id int) error {
	res, err := r.db.Exec(`DELETE FROM products WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalProduct(p *domain.Product) (name, desc, variants, images string, cfg any, err error) {
	if p.Variants == nil {
		p.Variants = []domain.Variant{}
	}
	if p.Images == nil {
		p.Images = []domain.ProductImage{}
	}
	nb, err := json.Marshal(p.Name)
	if err != nil {
		return
	}
	db, err := json.Marshal(p.Description)
	if err != nil {
		return
	}
	vb, err := json.Marshal(p.Variants)
	if err != nil {
		return
	}
	ib, err := json.Marshal(p.Images)
	if err != nil {
		return
	}
	cfg = nil
	if p.MercadoLibreConfig != nil {
		cb, merr := json.Marshal(p.MercadoLibreConfig)
		if merr != nil {
			err = merr
			return
		}
		cfg = string(cb)
	}
	return string(nb), string(db), string(vb), string(ib), cfg, nil
}
