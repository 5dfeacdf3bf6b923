package meli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"biciadmin/internal/domain"
	"biciadmin/internal/storage"
)

// stubProducts is an in-memory ProductStore for submitter and batch tests.
type stubProducts struct {
	products map[int]*domain.Product
	updates  int
}

func (s *stubProducts) Get(id int) (*domain.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return p, nil
}

func (s *stubProducts) Update(p *domain.Product) error {
	s.updates++
	s.products[p.ID] = p
	return nil
}

func configuredProduct(id int) *domain.Product {
	return &domain.Product{
		ID:   id,
		Name: domain.LocalizedText{Es: "Bicicleta de Montaña Rin 29"},
		Description: domain.LocalizedText{
			Es: "<table><tr><th>Marco</th><td>Aluminio</td></tr></table>",
		},
		Brand:    "GW",
		Variants: []domain.Variant{{Price: 1850000, Stock: 4}},
		MercadoLibreConfig: &domain.MigrationConfig{
			Category:   domain.MigrationCategory{ID: "MCO177994", Name: "Bicicletas"},
			Attributes: map[string]string{"BRAND": "GW"},
			Pricing:    domain.MigrationPricing{Price: 1850000},
			Inventory:  domain.MigrationInventory{AvailableQuantity: 4},
			Configured: true,
		},
	}
}

func newTestSubmitter(t *testing.T, handler http.Handler, store *stubProducts) *Submitter {
	t.Helper()
	client, _ := newTestClient(t, handler)
	uploads, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	s := NewSubmitter(client, NewAttributeMapper(client), NewPictureUploader(client, uploads), store)
	s.Now = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestSubmitCreatesListingAndPersistsState(t *testing.T) {
	var posted ListingPayload
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/categories/MCO177994/attributes":
			writeJSON(t, w, http.StatusOK, []map[string]any{})
		case "/items":
			if err := json.NewDecoder(r.Body).Decode(&posted); err != nil {
				t.Errorf("decode payload: %v", err)
			}
			writeJSON(t, w, http.StatusCreated, map[string]string{
				"id": "MCO-ITEM-1", "permalink": "https://articulo.mercadolibre.com.co/MCO-ITEM-1",
			})
		default:
			http.NotFound(w, r)
		}
	})

	product := configuredProduct(1)
	store := &stubProducts{products: map[int]*domain.Product{1: product}}
	s := newTestSubmitter(t, handler, store)

	res, err := s.Submit(context.Background(), product)
	if err != nil {
		t.Fatal(err)
	}
	if res.ItemID != "MCO-ITEM-1" {
		t.Errorf("item id = %q", res.ItemID)
	}

	if posted.Title != "Bicicleta de Montaña Rin 29" || posted.CategoryID != "MCO177994" {
		t.Errorf("payload = %+v", posted)
	}
	if posted.CurrencyID != "COP" || posted.Condition != "new" {
		t.Errorf("payload = %+v", posted)
	}
	if posted.ListingTypeID != "gold_special" {
		t.Errorf("listing type = %q, want the default", posted.ListingTypeID)
	}
	if posted.Description.PlainText != "Marco: Aluminio" {
		t.Errorf("description = %q", posted.Description.PlainText)
	}
	if posted.AvailableQuantity != 4 || posted.Price != 1850000 {
		t.Errorf("payload = %+v", posted)
	}

	cfg := product.MercadoLibreConfig
	if !cfg.Migrated || cfg.MlItemID != "MCO-ITEM-1" {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.MigratedAt != "2026-03-14T12:00:00Z" {
		t.Errorf("migrated at = %q", cfg.MigratedAt)
	}
	if store.updates != 1 {
		t.Errorf("updates = %d, want 1", store.updates)
	}
}

func TestSubmitPreconditions(t *testing.T) {
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.NotFound(w, r)
	})
	store := &stubProducts{products: map[int]*domain.Product{}}
	s := newTestSubmitter(t, handler, store)

	unconfigured := configuredProduct(1)
	unconfigured.MercadoLibreConfig = nil
	if _, err := s.Submit(context.Background(), unconfigured); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("got %v, want ErrNotConfigured", err)
	}

	migrated := configuredProduct(2)
	migrated.MercadoLibreConfig.Migrated = true
	if _, err := s.Submit(context.Background(), migrated); !errors.Is(err, ErrAlreadyMigrated) {
		t.Errorf("got %v, want ErrAlreadyMigrated", err)
	}

	if calls != 0 {
		t.Errorf("preconditions made %d network calls, want 0", calls)
	}
}

func TestSubmitRequiresAccessToken(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	if err := client.Tokens.Clear(); err != nil {
		t.Fatal(err)
	}
	uploads, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	s := NewSubmitter(client, NewAttributeMapper(client), NewPictureUploader(client, uploads),
		&stubProducts{products: map[int]*domain.Product{}})

	if _, err := s.Submit(context.Background(), configuredProduct(1)); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("got %v, want ErrNotAuthenticated", err)
	}
}

func TestSubmitRejectionDetails(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/categories/MCO177994/attributes":
			writeJSON(t, w, http.StatusOK, []map[string]any{})
		case "/items":
			writeJSON(t, w, http.StatusBadRequest, map[string]any{
				"message": "Validation error",
				"error":   "validation_error",
				"status":  400,
				"cause": []map[string]any{
					{"code": "item.attributes.invalid", "description": "BRAND is not valid"},
				},
			})
		default:
			http.NotFound(w, r)
		}
	})
	product := configuredProduct(1)
	store := &stubProducts{products: map[int]*domain.Product{1: product}}
	s := newTestSubmitter(t, handler, store)

	_, err := s.Submit(context.Background(), product)
	var rejected *ListingRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("got %T (%v), want *ListingRejectedError", err, err)
	}
	if rejected.Message != "Validation error (item.attributes.invalid: BRAND is not valid)" {
		t.Errorf("message = %q", rejected.Message)
	}
	if rejected.Error() != "Error de MercadoLibre: "+rejected.Message {
		t.Errorf("error = %q", rejected.Error())
	}
	if rejected.Code != "validation_error" {
		t.Errorf("code = %v", rejected.Code)
	}
	if rejected.Payload == nil || rejected.Payload.CategoryID != "MCO177994" {
		t.Errorf("payload = %+v", rejected.Payload)
	}
	if product.MercadoLibreConfig.Migrated {
		t.Error("rejected product must not be marked migrated")
	}
	if store.updates != 0 {
		t.Errorf("updates = %d, want 0", store.updates)
	}
}

func TestSubmitRejectionWithoutCauses(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/categories/MCO177994/attributes":
			writeJSON(t, w, http.StatusOK, []map[string]any{})
		case "/items":
			writeJSON(t, w, http.StatusForbidden, map[string]any{
				"message": "Operator not allowed",
				"error":   "forbidden",
			})
		default:
			http.NotFound(w, r)
		}
	})
	product := configuredProduct(1)
	s := newTestSubmitter(t, handler, &stubProducts{products: map[int]*domain.Product{1: product}})

	_, err := s.Submit(context.Background(), product)
	var rejected *ListingRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("got %v", err)
	}
	if rejected.Message != "Operator not allowed (forbidden)" {
		t.Errorf("message = %q", rejected.Message)
	}
}

func TestCleanDescription(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{
			"table rows become label lines",
			`<table><tr><th>Marca</th><td>GW</td></tr><tr><th>Rin</th><td>29</td></tr></table>`,
			"Marca: GW\nRin: 29",
		},
		{
			"plain html is stripped and collapsed",
			"<p>Casco  liviano\ncon regulador</p>",
			"Casco liviano con regulador",
		},
		{
			"empty input gets the placeholder",
			"",
			"Producto de calidad disponible en nuestra tienda.",
		},
		{
			"tags only gets the placeholder",
			"<div><span></span></div>",
			"Producto de calidad disponible en nuestra tienda.",
		},
		{
			"rows with empty cells fall through to stripping",
			"<table><tr><th></th><td>solo valor</td></tr></table>",
			"solo valor",
		},
	}
	for _, c := range cases {
		if got := CleanDescription(c.in); got != c.want {
			t.Errorf("%s: got %q, want %q", c.name, got, c.want)
		}
	}
}

func TestAssignmentsFromIsDeterministic(t *testing.T) {
	m := map[string]string{"WHEEL_SIZE": "29", "BRAND": "GW", "COLOR": "Negro"}
	got := assignmentsFrom(m)
	want := []Assignment{{"BRAND", "GW"}, {"COLOR", "Negro"}, {"WHEEL_SIZE", "29"}}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("assignment %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
