package repos

import (
	"database/sql"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"biciadmin/internal/domain"
)

type CategoryRepo struct{ db *sqlx.DB }

func NewCategoryRepo(db *sqlx.DB) *CategoryRepo { return &CategoryRepo{db: db} }

type categoryRow struct {
	ID         int            `db:"id"`
	NameJSON   string         `db:"name_json"`
	DescJSON   string         `db:"description_json"`
	HandleJSON string         `db:"handle_json"`
	Parent     int            `db:"parent"`
	SubsJSON   string         `db:"subcategories_json"`
	CreatedAt  string         `db:"created_at"`
	UpdatedAt  sql.NullString `db:"updated_at"`
}

func (r categoryRow) toDomain() (domain.Category, error) {
	c := domain.Category{ID: r.ID, Parent: r.Parent, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt.String}
	for _, pair := range []struct {
		raw string
		dst any
	}{{r.NameJSON, &c.Name}, {r.DescJSON, &c.Description}, {r.HandleJSON, &c.Handle}, {r.SubsJSON, &c.Subcategories}} {
		if err := json.Unmarshal([]byte(pair.raw), pair.dst); err != nil {
			return c, err
		}
	}
	if c.Subcategories == nil {
		c.Subcategories = []int{}
	}
	return c, nil
}

func (r *CategoryRepo) List() ([]domain.Category, error) {
	var rows []categoryRow
	err := r.db.Select(&rows, `
	  SELECT id, name_json, description_json, handle_json, parent, subcategories_json,
	         created_at, updated_at
	  FROM categories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Category, 0, len(rows))
	for _, row := range rows {
		c, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *CategoryRepo) Get(id int) (*domain.Category, error) {
	var row categoryRow
	err := r.db.Get(&row, `
	  SELECT id, name_json, description_json, handle_json, parent, subcategories_json,
	         created_at, updated_at
	  FROM categories WHERE id=?`, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &c, nil
}

var reSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug derives a URL handle from a Spanish display name.
func Slug(name string) string {
	s := reSlug.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(s, "-")
}

// Create inserts the category, defaulting handle/description, and registers
// it in the parent's subcategory list when a parent is set.
func (r *CategoryRepo) Create(c *domain.Category) error {
	if c.Handle.Es == "" {
		c.Handle.Es = Slug(c.Name.Es)
	}
	if c.Subcategories == nil {
		c.Subcategories = []int{}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	c.CreatedAt, c.UpdatedAt = now, now

	name, _ := json.Marshal(c.Name)
	desc, _ := json.Marshal(c.Description)
	handle, _ := json.Marshal(c.Handle)
	subs, _ := json.Marshal(c.Subcategories)

	res, err := r.db.Exec(`
	  INSERT INTO categories(name_json, description_json, handle_json, parent, subcategories_json, created_at, updated_at)
	  VALUES(?,?,?,?,?,?,?)`, name, desc, handle, c.Parent, subs, now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = int(id)

	if c.Parent != 0 {
		if err := r.linkChild(c.Parent, c.ID); err != nil {
			return err
		}
	}
	return nil
}

// Update rewrites the category and moves it between parents' subcategory
// lists when the parent changed.
func (r *CategoryRepo) Update(c *domain.Category) error {
	old, err := r.Get(c.ID)
	if err != nil {
		return err
	}
	c.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if c.Subcategories == nil {
		c.Subcategories = old.Subcategories
	}

	name, _ := json.Marshal(c.Name)
	desc, _ := json.Marshal(c.Description)
	handle, _ := json.Marshal(c.Handle)
	subs, _ := json.Marshal(c.Subcategories)

	_, err = r.db.Exec(`
	  UPDATE categories
	  SET name_json=?, description_json=?, handle_json=?, parent=?, subcategories_json=?, updated_at=?
	  WHERE id=?`, name, desc, handle, c.Parent, subs, c.UpdatedAt, c.ID)
	if err != nil {
		return err
	}

	if c.Parent != old.Parent {
		if old.Parent != 0 {
			if err := r.unlinkChild(old.Parent, c.ID); err != nil {
				return err
			}
		}
		if c.Parent != 0 {
			if err := r.linkChild(c.Parent, c.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *CategoryRepo) Delete(id int) error {
	c, err := r.Get(id)
	if err != nil {
		return err
	}
	if c.Parent != 0 {
		if err := r.unlinkChild(c.Parent, id); err != nil {
			return err
		}
	}
	res, err := r.db.Exec(`DELETE FROM categories WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CategoryRepo) linkChild(parentID, childID int) error {
	parent, err := r.Get(parentID)
	if err == ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	for _, id := range parent.Subcategories {
		if id == childID {
			return nil
		}
	}
	parent.Subcategories = append(parent.Subcategories, childID)
	subs, _ := json.Marshal(parent.Subcategories)
	_, err = r.db.Exec(`UPDATE categories SET subcategories_json=? WHERE id=?`, subs, parentID)
	return err
}

func (r *CategoryRepo) unlinkChild(parentID, childID int) error {
	parent, err := r.Get(parentID)
	if err == ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	kept := parent.Subcategories[:0]
	for _, id := range parent.Subcategories {
		if id != childID {
			kept = append(kept, id)
		}
	}
	subs, _ := json.Marshal(kept)
	_, err = r.db.Exec(`UPDATE categories SET subcategories_json=? WHERE id=?`, subs, parentID)
	return err
}
