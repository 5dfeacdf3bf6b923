package domain

// MigrationConfig is the MercadoLibre listing configuration attached to a
// product once the operator finishes category + attribute selection. After a
// successful migration it doubles as the idempotency record: Migrated=true
// blocks any further submission of the same product.
type MigrationConfig struct {
	Category    MigrationCategory    `json:"category"`
	Attributes  map[string]string    `json:"attributes"`
	Pricing     MigrationPricing     `json:"pricing"`
	Inventory   MigrationInventory   `json:"inventory"`
	Identifiers MigrationIdentifiers `json:"identifiers"`
	Configured  bool                 `json:"configured"`
	Migrated    bool                 `json:"migrated"`
	MlItemID    string               `json:"mlItemId,omitempty"`
	MlPermalink string               `json:"mlPermalink,omitempty"`
	MigratedAt  string               `json:"migratedAt,omitempty"`
}

type MigrationCategory struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
}

type MigrationPricing struct {
	Price       float64 `json:"price"`
	ListingType string  `json:"listingType,omitempty"`
}

type MigrationInventory struct {
	AvailableQuantity int    `json:"availableQuantity"`
	SellerSku         string `json:"sellerSku,omitempty"`
}

type MigrationIdentifiers struct {
	Gtin string `json:"gtin,omitempty"`
}
