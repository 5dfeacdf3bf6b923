package domain

// LocalizedText holds per-language copy. Only Spanish is populated today;
// the shape matches the catalog JSON consumed by the admin frontend.
type LocalizedText struct {
	Es string `json:"es"`
}

type Variant struct {
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
}

// ProductImage references a file stored under the uploads directory.
// Src is the public path ("/uploads/<filename>").
type ProductImage struct {
	Filename string `json:"filename"`
	Src      string `json:"src"`
}

type Product struct {
	ID                 int              `json:"id"`
	Name               LocalizedText    `json:"name"`
	Description        LocalizedText    `json:"description"`
	Brand              string           `json:"brand,omitempty"`
	Variants           []Variant        `json:"variants"`
	Images             []ProductImage   `json:"images"`
	MercadoLibreConfig *MigrationConfig `json:"mercadoLibreConfig,omitempty"`
}

type Category struct {
	ID            int           `json:"id"`
	Name          LocalizedText `json:"name"`
	Description   LocalizedText `json:"description"`
	Handle        LocalizedText `json:"handle"`
	Parent        int           `json:"parent,omitempty"`
	Subcategories []int         `json:"subcategories"`
	CreatedAt     string        `json:"created_at,omitempty"`
	UpdatedAt     string        `json:"updated_at,omitempty"`
}
