package meli

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	applog "biciadmin/internal/log"
)

// CategoryCandidate is one ranked category prediction, shaped identically for
// the official predictor and the smart-match fallback.
type CategoryCandidate struct {
	Rank           int                  `json:"rank"`
	Confidence     int                  `json:"confidence"`
	DomainID       string               `json:"domain_id"`
	DomainName     string               `json:"domain_name"`
	CategoryID     string               `json:"category_id"`
	CategoryName   string               `json:"category_name"`
	Attributes     []DomainAttribute    `json:"attributes"`
	Recommended    bool                 `json:"recommended"`
	KeywordMatched string               `json:"keyword_matched,omitempty"`
}

// DomainAttribute is an attribute hint returned by domain discovery.
type DomainAttribute struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	ValueID   string `json:"value_id,omitempty"`
	ValueName string `json:"value_name,omitempty"`
}

// PredictionResult is the resolver's answer. Success=false with an empty
// candidate list means "show the manual category browser", never a hard
// failure of the calling workflow.
type PredictionResult struct {
	Success          bool                `json:"success"`
	Query            string              `json:"query,omitempty"`
	EnglishQuery     string              `json:"english_query,omitempty"`
	Predictions      []CategoryCandidate `json:"predictions"`
	TotalPredictions int                 `json:"total_predictions"`
	Method           string              `json:"method,omitempty"`
	Error            string              `json:"error,omitempty"`
}

const smartMatchDomainID = "MCO-SMART-MATCH"
const smartMatchDomainName = "Smart Category Match"

// Static word-level Spanish→English table applied before hitting the
// predictor, which ranks noticeably better on English queries. Not a
// translation service.
var spanishToEnglish = map[string]string{
	"bicicleta":  "bicycle",
	"bicicletas": "bicycles",
	"montaña":    "mountain",
	"carretera":  "road",
	"ruta":       "road",
	"urbana":     "urban",
	"eléctrica":  "electric",
	"niños":      "kids",
	"adultos":    "adults",
	"casco":      "helmet",
	"cascos":     "helmets",
	"accesorios": "accessories",
	"repuestos":  "parts",
	"llantas":    "tires",
	"frenos":     "brakes",
}

// Keyword dictionary for the smart-match fallback. Order is the evaluation
// order; importance becomes the candidate confidence.
var bikeKeywords = []struct {
	word       string
	categories []string
	importance int
}{
	{"bicicleta", []string{"MCO1292"}, 95}, // Ciclismo
	{"bike", []string{"MCO1292"}, 95},
	{"ciclismo", []string{"MCO1292"}, 90},
	{"cycling", []string{"MCO1292"}, 90},
	{"montaña", []string{"MCO1292"}, 85},
	{"mountain", []string{"MCO1292"}, 85},
	{"carretera", []string{"MCO1292"}, 85},
	{"road", []string{"MCO1292"}, 80},
	{"bmx", []string{"MCO1292"}, 90},
	{"casco", []string{"MCO1292"}, 75},
	{"helmet", []string{"MCO1292"}, 75},
	{"deportes", []string{"MCO1276"}, 70}, // Deportes y Fitness
	{"sports", []string{"MCO1276"}, 70},
	{"fitness", []string{"MCO1338"}, 80}, // Fitness y Musculación
	{"accesorios", []string{"MCO1292"}, 65},
}

const defaultKeywordConfidence = 60

// Resolver predicts MercadoLibre categories for free-text product titles.
type Resolver struct {
	API *Client
}

func NewResolver(api *Client) *Resolver { return &Resolver{API: api} }

// Predict runs the official domain-discovery predictor and falls back to
// local keyword matching when it fails.
func (r *Resolver) Predict(ctx context.Context, title, description string) PredictionResult {
	query := strings.TrimSpace(title + " " + description)
	english := translateQuery(query)

	var raw []struct {
		DomainID     string            `json:"domain_id"`
		DomainName   string            `json:"domain_name"`
		CategoryID   string            `json:"category_id"`
		CategoryName string            `json:"category_name"`
		Attributes   []DomainAttribute `json:"attributes"`
	}
	path := fmt.Sprintf("/sites/%s/domain_discovery/search?q=%s", SiteID, url.QueryEscape(english))
	if err := r.API.GetJSON(ctx, path, &raw); err != nil {
		applog.Warn(nil, "ml.predict.fallback", map[string]any{"err": err.Error()})
		return r.smartMatch(ctx, title, description)
	}

	predictions := make([]CategoryCandidate, 0, len(raw))
	for i, p := range raw {
		attrs := p.Attributes
		if attrs == nil {
			attrs = []DomainAttribute{}
		}
		predictions = append(predictions, CategoryCandidate{
			Rank:         i + 1,
			Confidence:   rankConfidence(i, len(raw)),
			DomainID:     p.DomainID,
			DomainName:   p.DomainName,
			CategoryID:   p.CategoryID,
			CategoryName: p.CategoryName,
			Attributes:   attrs,
			Recommended:  i == 0,
		})
	}
	return PredictionResult{
		Success:          true,
		Query:            query,
		EnglishQuery:     english,
		Predictions:      predictions,
		TotalPredictions: len(predictions),
		Method:           "api_predictor",
	}
}

// smartMatch tests the query against the keyword dictionary over the full
// site category tree, then falls back to substring matching on category
// names. Only a failed tree fetch surfaces as a failure result.
func (r *Resolver) smartMatch(ctx context.Context, title, description string) PredictionResult {
	query := strings.ToLower(strings.TrimSpace(title + " " + description))

	tree, err := r.Roots(ctx)
	if err != nil {
		return PredictionResult{Success: false, Error: err.Error(), Predictions: []CategoryCandidate{}}
	}
	byID := make(map[string]SiteCategory, len(tree))
	for _, c := range tree {
		byID[c.ID] = c
	}

	type match struct {
		categoryID   string
		categoryName string
		confidence   int
		keyword      string
	}
	var matches []match
	seen := map[string]bool{}

	for _, kw := range bikeKeywords {
		if !strings.Contains(query, kw.word) {
			continue
		}
		for _, catID := range kw.categories {
			cat, ok := byID[catID]
			if !ok || seen[catID] {
				continue
			}
			seen[catID] = true
			matches = append(matches, match{catID, cat.Name, kw.importance, kw.word})
		}
	}

	if len(matches) == 0 {
		var terms []string
		for _, t := range strings.Fields(query) {
			if len(t) > 2 {
				terms = append(terms, t)
			}
		}
		for _, cat := range tree {
			lower := strings.ToLower(cat.Name)
			for _, term := range terms {
				if strings.Contains(lower, term) {
					matches = append(matches, match{cat.ID, cat.Name, defaultKeywordConfidence, term})
					break
				}
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].confidence > matches[j].confidence })
	if len(matches) > 5 {
		matches = matches[:5]
	}

	predictions := make([]CategoryCandidate, 0, len(matches))
	for i, m := range matches {
		predictions = append(predictions, CategoryCandidate{
			Rank:           i + 1,
			Confidence:     m.confidence,
			DomainID:       smartMatchDomainID,
			DomainName:     smartMatchDomainName,
			CategoryID:     m.categoryID,
			CategoryName:   m.categoryName,
			Attributes:     []DomainAttribute{},
			Recommended:    i == 0,
			KeywordMatched: m.keyword,
		})
	}
	return PredictionResult{
		Success:          true,
		Query:            strings.TrimSpace(title + " " + description),
		EnglishQuery:     query,
		Predictions:      predictions,
		TotalPredictions: len(predictions),
		Method:           "smart_matching",
	}
}

// rankConfidence maps a predictor rank to a confidence score: 95 for a lone
// result, otherwise 90 minus 15 per rank, floored at 20.
func rankConfidence(index, total int) int {
	if total == 1 {
		return 95
	}
	c := 90 - index*15
	if c < 20 {
		return 20
	}
	return c
}

func translateQuery(q string) string {
	words := strings.Fields(strings.ToLower(q))
	for i, w := range words {
		if en, ok := spanishToEnglish[w]; ok {
			words[i] = en
		}
	}
	return strings.Join(words, " ")
}
