package meli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// SiteCategory is a node of the site category tree.
type SiteCategory struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type PathNode struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CategoryDetails is the subset of /categories/{id} the admin tool uses.
type CategoryDetails struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	PathFromRoot       []PathNode       `json:"path_from_root"`
	ChildrenCategories []SiteCategory   `json:"children_categories"`
	Settings           categorySettings `json:"settings"`
}

type categorySettings struct {
	ListingAllowed       *bool    `json:"listing_allowed"`
	RequiresPicture      bool     `json:"requires_picture"`
	MaxPicturesPerItem   int      `json:"max_pictures_per_item"`
	MaxTitleLength       int      `json:"max_title_length"`
	MaxDescriptionLength int      `json:"max_description_length"`
	Price                string   `json:"price"`
	Stock                string   `json:"stock"`
	MinimumPrice         float64  `json:"minimum_price"`
	MaximumPrice         float64  `json:"maximum_price"`
	ItemConditions       []string `json:"item_conditions"`
	Currencies           []string `json:"currencies"`
	AdultContent         bool     `json:"adult_content"`
	Restrictions         []string `json:"restrictions"`
}

// AttributeValue is one controlled-vocabulary entry of a list/boolean spec.
type AttributeValue struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AttributeSpec is a normalized category attribute: the raw tags collection
// (array or keyed set, depending on the attribute) is flattened to a sorted
// string slice at ingestion, and Required derived from it once.
type AttributeSpec struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	ValueType string           `json:"value_type"`
	Required  bool             `json:"required"`
	Values    []AttributeValue `json:"values"`
	Tags      []string         `json:"tags"`
	MaxLength int              `json:"max_length,omitempty"`
	Hint      string           `json:"hint,omitempty"`
}

// AttributeSet partitions a category's specs into required and optional.
// The partition is computed once per fetch and stays fixed for the lifetime
// of a configuration session.
type AttributeSet struct {
	All           []AttributeSpec `json:"all"`
	Required      []AttributeSpec `json:"required"`
	Optional      []AttributeSpec `json:"optional"`
	Total         int             `json:"total"`
	RequiredCount int             `json:"required_count"`
}

type rawAttribute struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	ValueType      string           `json:"value_type"`
	Tags           json.RawMessage  `json:"tags"`
	Values         []AttributeValue `json:"values"`
	ValueMaxLength int              `json:"value_max_length"`
	Hint           string           `json:"hint"`
}

var requiredTags = []string{"required", "catalog_required", "catalog_listing_required"}

// normalizeTags flattens the two wire shapes of the tags collection: a plain
// array of tag names, or an object whose keys are the tag names.
func normalizeTags(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var set map[string]any
	if err := json.Unmarshal(raw, &set); err == nil {
		keys := make([]string, 0, len(set))
		for k := range set {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	}
	return nil
}

func isRequired(tags []string) bool {
	for _, t := range tags {
		for _, want := range requiredTags {
			if t == want {
				return true
			}
		}
	}
	return false
}

// Roots fetches the full category tree for the site.
func (r *Resolver) Roots(ctx context.Context) ([]SiteCategory, error) {
	var cats []SiteCategory
	if err := r.API.GetJSON(ctx, fmt.Sprintf("/sites/%s/categories", SiteID), &cats); err != nil {
		return nil, fmt.Errorf("failed to get root categories: %w", err)
	}
	return cats, nil
}

// Details fetches one category.
func (r *Resolver) Details(ctx context.Context, categoryID string) (*CategoryDetails, error) {
	var d CategoryDetails
	if err := r.API.GetJSON(ctx, "/categories/"+categoryID, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Attributes fetches and normalizes a category's attribute specs.
func (r *Resolver) Attributes(ctx context.Context, categoryID string) (*AttributeSet, error) {
	var raw []rawAttribute
	if err := r.API.GetJSON(ctx, "/categories/"+categoryID+"/attributes", &raw); err != nil {
		return nil, err
	}

	set := &AttributeSet{All: make([]AttributeSpec, 0, len(raw))}
	for _, a := range raw {
		tags := normalizeTags(a.Tags)
		values := a.Values
		if values == nil {
			values = []AttributeValue{}
		}
		spec := AttributeSpec{
			ID:        a.ID,
			Name:      a.Name,
			ValueType: a.ValueType,
			Required:  isRequired(tags),
			Values:    values,
			Tags:      tags,
			MaxLength: a.ValueMaxLength,
			Hint:      a.Hint,
		}
		set.All = append(set.All, spec)
		if spec.Required {
			set.Required = append(set.Required, spec)
		} else {
			set.Optional = append(set.Optional, spec)
		}
	}
	set.Total = len(set.All)
	set.RequiredCount = len(set.Required)
	return set, nil
}

// Search filters the site category tree by name substring, capped at 20.
func (r *Resolver) Search(ctx context.Context, query string) ([]SiteCategory, int, error) {
	cats, err := r.Roots(ctx)
	if err != nil {
		return nil, 0, err
	}
	q := strings.ToLower(query)
	var hits []SiteCategory
	for _, c := range cats {
		if strings.Contains(strings.ToLower(c.Name), q) {
			hits = append(hits, c)
		}
	}
	total := len(hits)
	if len(hits) > 20 {
		hits = hits[:20]
	}
	if hits == nil {
		hits = []SiteCategory{}
	}
	return hits, total, nil
}

// Hierarchy describes where a category sits in the tree.
type Hierarchy struct {
	PathFromRoot       []PathNode     `json:"path_from_root"`
	ChildrenCategories []SiteCategory `json:"children_categories"`
	ParentPath         string         `json:"parent_path"`
	IsLeaf             bool           `json:"is_leaf"`
}

func (r *Resolver) Hierarchy(ctx context.Context, categoryID string) (*Hierarchy, error) {
	d, err := r.Details(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	path := d.PathFromRoot
	if path == nil {
		path = []PathNode{}
	}
	children := d.ChildrenCategories
	if children == nil {
		children = []SiteCategory{}
	}
	return &Hierarchy{
		PathFromRoot:       path,
		ChildrenCategories: children,
		ParentPath:         parentPath(path),
		IsLeaf:             len(children) == 0,
	}, nil
}

func parentPath(path []PathNode) string {
	if len(path) <= 1 {
		return ""
	}
	names := make([]string, 0, len(path)-1)
	for _, p := range path[:len(path)-1] {
		names = append(names, p.Name)
	}
	return strings.Join(names, " > ")
}

// ListingValidation summarizes whether a category accepts new listings and
// under which constraints.
type ListingValidation struct {
	CanList      bool                `json:"can_list"`
	Reasons      []string            `json:"reasons"`
	Warnings     []string            `json:"warnings"`
	Requirements ListingRequirements `json:"requirements"`
}

type ListingRequirements struct {
	PicturesRequired     bool     `json:"pictures_required"`
	MaxPictures          int      `json:"max_pictures"`
	MaxTitleLength       int      `json:"max_title_length"`
	MaxDescriptionLength int      `json:"max_description_length"`
	PriceRequired        bool     `json:"price_required"`
	StockRequired        bool     `json:"stock_required"`
	MinimumPrice         float64  `json:"minimum_price"`
	MaximumPrice         float64  `json:"maximum_price,omitempty"`
	AllowedConditions    []string `json:"allowed_conditions"`
	AllowedCurrencies    []string `json:"allowed_currencies"`
}

func (r *Resolver) ValidateForListing(ctx context.Context, categoryID string) (*ListingValidation, *CategoryDetails, error) {
	d, err := r.Details(ctx, categoryID)
	if err != nil {
		return nil, nil, err
	}
	s := d.Settings

	maxPictures := s.MaxPicturesPerItem
	if maxPictures == 0 {
		maxPictures = 12
	}
	maxTitle := s.MaxTitleLength
	if maxTitle == 0 {
		maxTitle = 60
	}
	maxDesc := s.MaxDescriptionLength
	if maxDesc == 0 {
		maxDesc = 50000
	}
	conditions := s.ItemConditions
	if len(conditions) == 0 {
		conditions = []string{"new"}
	}
	currencies := s.Currencies
	if len(currencies) == 0 {
		currencies = []string{CurrencyID}
	}

	v := &ListingValidation{
		CanList:  s.ListingAllowed == nil || *s.ListingAllowed,
		Reasons:  []string{},
		Warnings: []string{},
		Requirements: ListingRequirements{
			PicturesRequired:     s.RequiresPicture,
			MaxPictures:          maxPictures,
			MaxTitleLength:       maxTitle,
			MaxDescriptionLength: maxDesc,
			PriceRequired:        s.Price == "required",
			StockRequired:        s.Stock == "required",
			MinimumPrice:         s.MinimumPrice,
			MaximumPrice:         s.MaximumPrice,
			AllowedConditions:    conditions,
			AllowedCurrencies:    currencies,
		},
	}
	if !v.CanList {
		v.Reasons = append(v.Reasons, "Listing not allowed in this category")
	}
	if s.AdultContent {
		v.Warnings = append(v.Warnings, "This category contains adult content")
	}
	if len(s.Restrictions) > 0 {
		v.Warnings = append(v.Warnings, "Category has restrictions: "+strings.Join(s.Restrictions, ", "))
	}
	return v, d, nil
}
