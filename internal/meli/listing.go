package meli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"biciadmin/internal/domain"
	applog "biciadmin/internal/log"
)

const defaultListingType = "gold_special"
const fallbackDescription = "Producto de calidad disponible en nuestra tienda."
const fallbackListingDescription = "Descripción del producto"

// ListingPayload is the wire format POSTed to /items. It is built fresh per
// submission attempt and only survives inside rejection errors, for
// diagnostics.
type ListingPayload struct {
	Title             string             `json:"title"`
	CategoryID        string             `json:"category_id"`
	Price             float64            `json:"price"`
	CurrencyID        string             `json:"currency_id"`
	AvailableQuantity int                `json:"available_quantity"`
	Condition         string             `json:"condition"`
	ListingTypeID     string             `json:"listing_type_id"`
	Description       ListingDescription `json:"description"`
	Pictures          []Picture          `json:"pictures"`
	Attributes        []ListingAttribute `json:"attributes"`
}

type ListingDescription struct {
	PlainText string `json:"plain_text"`
}

// SubmitResult reports a successful listing creation.
type SubmitResult struct {
	ItemID    string `json:"mlItemId"`
	Permalink string `json:"permalink"`
}

// ListingRejectedError carries everything an operator needs to act on a
// marketplace rejection: the composite message, the raw error code and cause
// array, and the payload that was sent.
type ListingRejectedError struct {
	Message   string
	Code      any
	Details   any
	Payload   *ListingPayload
	Status    int
}

func (e *ListingRejectedError) Error() string {
	return "Error de MercadoLibre: " + e.Message
}

// Submitter drives one product through the full pipeline: pictures,
// attributes, payload assembly, submission and state persistence.
type Submitter struct {
	API      *Client
	Mapper   *AttributeMapper
	Pictures *PictureUploader
	Products ProductStore
	Now      func() time.Time
}

// ProductStore is the narrow catalog contract the pipeline needs.
type ProductStore interface {
	Get(id int) (*domain.Product, error)
	Update(p *domain.Product) error
}

func NewSubmitter(api *Client, mapper *AttributeMapper, pictures *PictureUploader, products ProductStore) *Submitter {
	return &Submitter{API: api, Mapper: mapper, Pictures: pictures, Products: products, Now: time.Now}
}

// Submit creates the MercadoLibre listing for a configured product. All
// preconditions are checked before any network call; on success the
// product's migration config is mutated in place and persisted, which is the
// durable record preventing re-submission.
func (s *Submitter) Submit(ctx context.Context, product *domain.Product) (*SubmitResult, error) {
	if !s.API.Tokens.HasAccessToken() {
		return nil, ErrNotAuthenticated
	}
	cfg := product.MercadoLibreConfig
	if cfg == nil || !cfg.Configured {
		return nil, ErrNotConfigured
	}
	if cfg.Migrated {
		return nil, ErrAlreadyMigrated
	}

	// Zero images is valid: an empty pictures list, not an error.
	pictures := []Picture{}
	if len(product.Images) > 0 {
		report := s.Pictures.Upload(ctx, product.Images)
		pictures = report.Pictures
	}

	attributes := s.Mapper.Build(ctx, cfg.Category.ID, assignmentsFrom(cfg.Attributes), cfg.Identifiers.Gtin)

	listingType := cfg.Pricing.ListingType
	if listingType == "" {
		listingType = defaultListingType
	}
	description := CleanDescription(product.Description.Es)
	if description == "" {
		description = fallbackListingDescription
	}

	payload := &ListingPayload{
		Title:             product.Name.Es,
		CategoryID:        cfg.Category.ID,
		Price:             cfg.Pricing.Price,
		CurrencyID:        CurrencyID,
		AvailableQuantity: cfg.Inventory.AvailableQuantity,
		Condition:         "new",
		ListingTypeID:     listingType,
		Description:       ListingDescription{PlainText: description},
		Pictures:          pictures,
		Attributes:        attributes,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	resp, err := s.API.Request(ctx, http.MethodPost, "/items", body, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, rejectionFrom(apiErr, payload)
		}
		return nil, err
	}

	var created struct {
		ID        string `json:"id"`
		Permalink string `json:"permalink"`
	}
	if err := json.Unmarshal(resp, &created); err != nil {
		return nil, err
	}

	cfg.Migrated = true
	cfg.MlItemID = created.ID
	cfg.MlPermalink = created.Permalink
	cfg.MigratedAt = s.Now().UTC().Format(time.RFC3339)
	if err := s.Products.Update(product); err != nil {
		// The listing exists on the marketplace; losing the local record is
		// worth a loud log but not a failed response.
		applog.Error(nil, "ml.migrate.persist", err, map[string]any{"product": product.ID})
	}

	return &SubmitResult{ItemID: created.ID, Permalink: created.Permalink}, nil
}

// assignmentsFrom orders the configured attribute map by key so payloads are
// deterministic, GTIN always coming last via the mapper.
func assignmentsFrom(m map[string]string) []Assignment {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Assignment, 0, len(keys))
	for _, k := range keys {
		out = append(out, Assignment{ID: k, Value: m[k]})
	}
	return out
}

type mlErrorBody struct {
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Status  int             `json:"status"`
	Cause   json.RawMessage `json:"cause"`
}

type mlCause struct {
	Code        any    `json:"code"`
	Description string `json:"description"`
}

// rejectionFrom builds the composite operator-facing message: the response's
// message plus each cause as "code: description" joined with "; ", or the
// bare error field when no cause array exists.
func rejectionFrom(apiErr *APIError, payload *ListingPayload) *ListingRejectedError {
	var body mlErrorBody
	_ = json.Unmarshal(apiErr.Body, &body)

	message := body.Message
	if message == "" {
		message = "Error desconocido"
	}

	var causes []mlCause
	hasCauses := len(body.Cause) > 0 && json.Unmarshal(body.Cause, &causes) == nil && len(causes) > 0
	if hasCauses {
		parts := make([]string, 0, len(causes))
		for _, c := range causes {
			if c.Code != nil && c.Description != "" {
				parts = append(parts, fmt.Sprintf("%v: %s", c.Code, c.Description))
			} else {
				raw, _ := json.Marshal(c)
				parts = append(parts, string(raw))
			}
		}
		message += " (" + strings.Join(parts, "; ") + ")"
	} else if body.Error != "" {
		message += " (" + body.Error + ")"
	}

	rej := &ListingRejectedError{
		Message: message,
		Payload: payload,
		Status:  apiErr.Status,
	}
	if body.Error != "" {
		rej.Code = body.Error
	} else {
		rej.Code = body.Status
	}
	if len(body.Cause) > 0 {
		rej.Details = body.Cause
	} else {
		rej.Details = body.Message
	}
	return rej
}

var (
	reTableRow   = regexp.MustCompile(`(?is)<tr[^>]*>.*?<th[^>]*>(.*?)</th>.*?<td[^>]*>(.*?)</td>.*?</tr>`)
	reHTMLTag    = regexp.MustCompile(`<[^>]*>`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

// CleanDescription converts the catalog's HTML-table description into plain
// "Label: Value" lines, one per detected table row. When no rows are found it
// strips tags and collapses whitespace; an empty result yields a generic
// placeholder.
func CleanDescription(html string) string {
	if html == "" {
		return fallbackDescription
	}

	var lines []string
	for _, m := range reTableRow.FindAllStringSubmatch(html, -1) {
		label := strings.TrimSpace(reHTMLTag.ReplaceAllString(m[1], ""))
		value := strings.TrimSpace(reHTMLTag.ReplaceAllString(m[2], ""))
		if label != "" && value != "" {
			lines = append(lines, label+": "+value)
		}
	}
	if len(lines) > 0 {
		return strings.Join(lines, "\n")
	}

	clean := reHTMLTag.ReplaceAllString(html, " ")
	clean = strings.TrimSpace(reWhitespace.ReplaceAllString(clean, " "))
	if clean == "" {
		return fallbackDescription
	}
	return clean
}
