package meli

import (
	"context"
	"strings"

	applog "biciadmin/internal/log"
)

// Assignment is one operator-entered attribute value, keyed by the
// category's attribute id.
type Assignment struct {
	ID    string
	Value string
}

// ListingAttribute is the wire shape submitted with a listing: either a
// controlled-vocabulary match (value_id + value_name) or free text
// (value_name only).
type ListingAttribute struct {
	ID        string `json:"id"`
	ValueID   string `json:"value_id,omitempty"`
	ValueName string `json:"value_name,omitempty"`
}

// AttributeMapper resolves free-form assignment values onto a category's
// controlled vocabulary, with free-text fallbacks where the category allows
// them.
type AttributeMapper struct {
	API *Client
}

func NewAttributeMapper(api *Client) *AttributeMapper { return &AttributeMapper{API: api} }

type specInfo struct {
	valueType string
	values    []AttributeValue
}

// Build maps every assignment in order, appending GTIN last. It never fails:
// if the category's attribute specs cannot be fetched it degrades to pure
// pass-through so the pipeline still produces a submittable payload.
func (m *AttributeMapper) Build(ctx context.Context, categoryID string, assignments []Assignment, gtin string) []ListingAttribute {
	var raw []rawAttribute
	if err := m.API.GetJSON(ctx, "/categories/"+categoryID+"/attributes", &raw); err != nil {
		applog.Warn(nil, "ml.attributes.passthrough", map[string]any{
			"category": categoryID, "err": err.Error(),
		})
		return passthrough(assignments, gtin)
	}

	specs := make(map[string]specInfo, len(raw))
	for _, a := range raw {
		specs[a.ID] = specInfo{valueType: a.ValueType, values: a.Values}
	}

	attrs := make([]ListingAttribute, 0, len(assignments)+1)
	for _, asg := range assignments {
		if asg.Value == "" {
			continue
		}
		spec, known := specs[asg.ID]
		if !known {
			// Unknown to the category: keep it as free text rather than drop it.
			attrs = append(attrs, ListingAttribute{ID: asg.ID, ValueName: asg.Value})
			continue
		}

		if spec.valueType == "list" || spec.valueType == "boolean" {
			if matched, ok := exactMatch(spec.values, asg.Value); ok {
				attrs = append(attrs, ListingAttribute{ID: asg.ID, ValueID: matched.ID, ValueName: matched.Name})
				continue
			}
			if matched, ok := closestMatch(spec.values, asg.Value); ok {
				// Keep the operator's original phrasing as the label; only
				// the id comes from the vocabulary.
				attrs = append(attrs, ListingAttribute{ID: asg.ID, ValueID: matched.ID, ValueName: asg.Value})
				continue
			}
			// List/boolean attributes must never carry free text the
			// marketplace would reject.
			applog.Warn(nil, "ml.attributes.unmatched", map[string]any{
				"attribute": asg.ID, "value": asg.Value,
			})
			continue
		}

		attrs = append(attrs, ListingAttribute{ID: asg.ID, ValueName: applyWeightUnit(asg.ID, asg.Value)})
	}

	if gtin != "" {
		attrs = append(attrs, ListingAttribute{ID: "GTIN", ValueName: gtin})
	}
	return attrs
}

func exactMatch(values []AttributeValue, input string) (AttributeValue, bool) {
	lower := strings.ToLower(input)
	for _, v := range values {
		if v.ID == input || v.Name == input || strings.ToLower(v.Name) == lower {
			return v, true
		}
	}
	return AttributeValue{}, false
}

func closestMatch(values []AttributeValue, input string) (AttributeValue, bool) {
	lower := strings.ToLower(input)
	for _, v := range values {
		name := strings.ToLower(v.Name)
		if strings.Contains(name, lower) || strings.Contains(lower, name) {
			return v, true
		}
	}
	return AttributeValue{}, false
}

// applyWeightUnit appends " kg" to WEIGHT values that carry no unit. The rule
// is idempotent: values already mentioning kg or lb pass through.
func applyWeightUnit(attrID, value string) string {
	if attrID == "WEIGHT" && !strings.Contains(value, "kg") && !strings.Contains(value, "lb") {
		return value + " kg"
	}
	return value
}

// passthrough is the degraded mode used when spec fetch fails: every
// non-empty assignment becomes free text, keeping the WEIGHT rule and GTIN.
func passthrough(assignments []Assignment, gtin string) []ListingAttribute {
	attrs := make([]ListingAttribute, 0, len(assignments)+1)
	for _, asg := range assignments {
		if asg.Value == "" {
			continue
		}
		attrs = append(attrs, ListingAttribute{ID: asg.ID, ValueName: applyWeightUnit(asg.ID, asg.Value)})
	}
	if gtin != "" {
		attrs = append(attrs, ListingAttribute{ID: "GTIN", ValueName: gtin})
	}
	return attrs
}
