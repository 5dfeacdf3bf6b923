package repos

import (
	"log"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

func OpenDB(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}

	if err := EnsureSchema(db); err != nil {
		return nil, err
	}
	if err := seedIfEmpty(db); err != nil {
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates the catalog tables. Exported so tests can run it
// against an in-memory database.
func EnsureSchema(db *sqlx.DB) error {
	schema := `
PRAGMA foreign_keys = ON;

-- Local catalog categories (independent of MercadoLibre categories)
CREATE TABLE IF NOT EXISTS categories(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name_json TEXT NOT NULL,
  description_json TEXT NOT NULL DEFAULT '{"es":""}',
  handle_json TEXT NOT NULL DEFAULT '{"es":""}',
  parent INTEGER NOT NULL DEFAULT 0,
  subcategories_json TEXT NOT NULL DEFAULT '[]',
  created_at TEXT DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT
);

-- Products. Localized and structured fields are stored as JSON columns,
-- matching the document shape the admin frontend exchanges.
CREATE TABLE IF NOT EXISTS products(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name_json TEXT NOT NULL,
  description_json TEXT NOT NULL DEFAULT '{"es":""}',
  brand TEXT NOT NULL DEFAULT '',
  variants_json TEXT NOT NULL DEFAULT '[]',
  images_json TEXT NOT NULL DEFAULT '[]',
  ml_config_json TEXT,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_products_created_at ON products(created_at);

-- Single-row MercadoLibre OAuth credential
CREATE TABLE IF NOT EXISTS ml_credentials(
  id INTEGER PRIMARY KEY CHECK (id = 1),
  data TEXT NOT NULL,
  updated_at TEXT DEFAULT CURRENT_TIMESTAMP
);
`
	_, err := db.Exec(schema)
	return err
}

func seedIfEmpty(db *sqlx.DB) error {
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM categories`); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	log.Println("[seed] inserting demo categories/products")

	tx := db.MustBegin()
	tx.MustExec(`INSERT INTO categories(id, name_json, description_json, handle_json) VALUES
	  (1,'{"es":"Bicicletas de Montaña"}','{"es":"MTB rígidas y doble suspensión"}','{"es":"bicicletas-de-montana"}'),
	  (2,'{"es":"Bicicletas de Ruta"}','{"es":"Carretera y gravel"}','{"es":"bicicletas-de-ruta"}'),
	  (3,'{"es":"Cascos"}','{"es":"Cascos certificados"}','{"es":"cascos"}'),
	  (4,'{"es":"Accesorios"}','{"es":"Luces, candados, herramienta"}','{"es":"accesorios"}')`)

	tx.MustExec(`INSERT INTO products(id, name_json, description_json, brand, variants_json, images_json) VALUES
	  (1,'{"es":"Bicicleta de Montaña Rin 29"}',
	     '{"es":"<table><tr><th>Marco</th><td>Aluminio 6061</td></tr><tr><th>Cambios</th><td>Shimano 21 vel</td></tr></table>"}',
	     'GW','[{"price":1850000,"stock":4}]','[]'),
	  (2,'{"es":"Casco Ciclismo Adulto"}',
	     '{"es":"Casco liviano con regulador occipital"}',
	     'GW','[{"price":145000,"stock":12}]','[]')`)

	return tx.Commit()
}
