package handlers_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"biciadmin/internal/config"
	"biciadmin/internal/http/handlers"
	"biciadmin/internal/repos"
	"biciadmin/internal/storage"
)

// newTestApp wires the full handler graph against an in-memory database and
// a throwaway uploads directory.
func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	db, err := repos.OpenDB(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	uploads, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	app := fiber.New()
	app.Use(requestid.New())

	deps := handlers.NewDeps(db, config.Config{MLAppID: "app", MLSecretKey: "secret"}, uploads)

	api := app.Group("/api")
	api.Get("/products", deps.ProductHandler.List)
	api.Get("/products/:id", deps.ProductHandler.Get)
	api.Post("/products", deps.ProductHandler.Create)
	api.Put("/products/:id", deps.ProductHandler.Update)
	api.Delete("/products/:id", deps.ProductHandler.Delete)
	api.Get("/categories", deps.CategoryHandler.List)
	api.Post("/categories", deps.CategoryHandler.Create)

	ml := api.Group("/ml")
	ml.Get("/auth/url", deps.MLAuthHandler.AuthURL)
	ml.Get("/auth/status", deps.MLAuthHandler.Status)
	ml.Get("/products/:productId/config", deps.ProductHandler.MLConfigGet)
	ml.Post("/products/:productId/config", deps.ProductHandler.MLConfigSet)
	ml.Post("/products/:productId/migrate", deps.MigrateHandler.Migrate)
	ml.Post("/products/batch-migrate", deps.MigrateHandler.BatchMigrate)

	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp, out
}

func TestProductCRUD(t *testing.T) {
	app := newTestApp(t)

	resp, created := doJSON(t, app, "POST", "/api/products",
		`{"name":{"es":"Candado U-Lock"},"brand":"Kryptonite","variants":[{"price":180000,"stock":10}]}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body = %v", resp.StatusCode, created)
	}
	id := int(created["id"].(float64))
	if id == 0 {
		t.Fatal("create returned no id")
	}

	resp, got := doJSON(t, app, "GET", "/api/products/"+strconv.Itoa(id), "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	name := got["name"].(map[string]any)
	if name["es"] != "Candado U-Lock" {
		t.Errorf("name = %v", name)
	}

	resp, _ = doJSON(t, app, "PUT", "/api/products/"+strconv.Itoa(id),
		`{"name":{"es":"Candado U-Lock Mini"},"variants":[{"price":150000,"stock":5}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, app, "DELETE", "/api/products/"+strconv.Itoa(id), "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, app, "GET", "/api/products/"+strconv.Itoa(id), "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete = %d", resp.StatusCode)
	}
}

func TestProductValidation(t *testing.T) {
	app := newTestApp(t)

	// Missing variants
	resp, _ := doJSON(t, app, "POST", "/api/products", `{"name":{"es":"Sin precio"}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	// Missing name
	resp, _ = doJSON(t, app, "POST", "/api/products", `{"variants":[{"price":1}]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	// Non-numeric id
	resp, _ = doJSON(t, app, "GET", "/api/products/abc", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestCategoryValidation(t *testing.T) {
	app := newTestApp(t)

	resp, _ := doJSON(t, app, "POST", "/api/categories", `{"description":{"es":"sin nombre"}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	resp, created := doJSON(t, app, "POST", "/api/categories", `{"name":{"es":"Guardabarros"}}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	handle := created["handle"].(map[string]any)
	if handle["es"] != "guardabarros" {
		t.Errorf("handle = %v", handle)
	}
}

func TestMLConfigLifecycle(t *testing.T) {
	app := newTestApp(t)

	// Seeded product 1 starts without a config.
	resp, body := doJSON(t, app, "GET", "/api/ml/products/1/config", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["config"] != nil {
		t.Errorf("config = %v, want null", body["config"])
	}

	// A config without a category is rejected.
	resp, _ = doJSON(t, app, "POST", "/api/ml/products/1/config", `{"attributes":{"BRAND":"GW"}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	resp, body = doJSON(t, app, "POST", "/api/ml/products/1/config",
		`{"category":{"id":"MCO177994","name":"Bicicletas"},"attributes":{"BRAND":"GW"},"pricing":{"price":1850000},"inventory":{"availableQuantity":4}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["success"] != true {
		t.Errorf("body = %v", body)
	}

	_, body = doJSON(t, app, "GET", "/api/ml/products/1/config", "")
	cfg, _ := body["config"].(map[string]any)
	if cfg == nil || cfg["configured"] != true {
		t.Errorf("config = %v", body["config"])
	}
	cat := cfg["category"].(map[string]any)
	if cat["id"] != "MCO177994" {
		t.Errorf("category = %v", cat)
	}
}

func TestMLConfigRejectsInvalidValues(t *testing.T) {
	app := newTestApp(t)

	// A malformed GTIN never reaches the database.
	resp, body := doJSON(t, app, "POST", "/api/ml/products/1/config",
		`{"category":{"id":"MCO177994"},"pricing":{"price":1850000},"identifiers":{"gtin":"abcd1234"}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if msg, _ := body["error"].(string); !strings.Contains(msg, "GTIN") {
		t.Errorf("error = %v", body["error"])
	}
	_, body = doJSON(t, app, "GET", "/api/ml/products/1/config", "")
	if body["config"] != nil {
		t.Errorf("config persisted after rejection: %v", body["config"])
	}

	// Wrong length, digits only.
	resp, _ = doJSON(t, app, "POST", "/api/ml/products/1/config",
		`{"category":{"id":"MCO177994"},"pricing":{"price":1850000},"identifiers":{"gtin":"1234567"}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("short gtin status = %d, want 400", resp.StatusCode)
	}

	// A listing cannot be configured without a positive price.
	resp, body = doJSON(t, app, "POST", "/api/ml/products/1/config",
		`{"category":{"id":"MCO177994"},"pricing":{"price":0}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("zero price status = %d, body = %v", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, app, "POST", "/api/ml/products/1/config",
		`{"category":{"id":"MCO177994"},"pricing":{"price":-500}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("negative price status = %d, want 400", resp.StatusCode)
	}

	// Valid EAN-13 is accepted and the quantity is clamped on the way in.
	resp, body = doJSON(t, app, "POST", "/api/ml/products/1/config",
		`{"category":{"id":"MCO177994"},"pricing":{"price":1850000},"inventory":{"availableQuantity":50000},"identifiers":{"gtin":"7701234567890"}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("valid gtin status = %d, body = %v", resp.StatusCode, body)
	}
	_, body = doJSON(t, app, "GET", "/api/ml/products/1/config", "")
	cfg, _ := body["config"].(map[string]any)
	if cfg == nil {
		t.Fatal("config missing after save")
	}
	ids := cfg["identifiers"].(map[string]any)
	if ids["gtin"] != "7701234567890" {
		t.Errorf("gtin = %v", ids["gtin"])
	}
	inv := cfg["inventory"].(map[string]any)
	if inv["availableQuantity"] != float64(9999) {
		t.Errorf("availableQuantity = %v, want 9999", inv["availableQuantity"])
	}
}

func TestMigrateRequiresAuthentication(t *testing.T) {
	app := newTestApp(t)

	resp, body := doJSON(t, app, "POST", "/api/ml/products/1/migrate", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, app, "POST", "/api/ml/products/batch-migrate", `{"productIds":[1]}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("batch status = %d, want 401", resp.StatusCode)
	}
}

func TestBatchMigrateRequiresIDs(t *testing.T) {
	app := newTestApp(t)

	// Authentication is checked first; bypassing it needs a credential, so
	// this only asserts the empty-list shape once a 401 is not in the way.
	resp, _ := doJSON(t, app, "POST", "/api/ml/products/batch-migrate", `{"productIds":[]}`)
	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestAuthURLEndpoint(t *testing.T) {
	app := newTestApp(t)

	resp, body := doJSON(t, app, "GET", "/api/ml/auth/url", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	authURL, _ := body["authUrl"].(string)
	if !strings.Contains(authURL, "client_id=app") || !strings.Contains(authURL, "state=") {
		t.Errorf("authUrl = %q", authURL)
	}
	if body["state"] == "" {
		t.Error("missing state")
	}

	_, status := doJSON(t, app, "GET", "/api/ml/auth/status", "")
	if status["authenticated"] != false {
		t.Errorf("status = %v", status)
	}
}
