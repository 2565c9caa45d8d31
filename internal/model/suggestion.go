// Package model defines the core domain models used throughout the application.
package model

// MaterialType classifies what kind of document a material is.
type MaterialType string

// Material type constants.
const (
	MaterialProductBrief MaterialType = "product_brief"
	MaterialSalesDeck    MaterialType = "sales_deck"
	MaterialDatasheet    MaterialType = "datasheet"
	MaterialCaseStudy    MaterialType = "case_study"
	MaterialWhitepaper   MaterialType = "whitepaper"
	MaterialTraining     MaterialType = "training"
	MaterialOther        MaterialType = "other"
)

// Audience identifies who a material is meant for.
type Audience string

// Audience constants.
const (
	AudienceInternal       Audience = "internal"
	AudienceCustomerFacing Audience = "customer_facing"
	AudienceBoth           Audience = "both"
)

// ManualConfidence marks a suggestion as authored by a person rather than scored by the classifier.
const ManualConfidence = 0.0

// ReviewedConfidence is assigned when an operator saves an edit.
const ReviewedConfidence = 1.0

// ManualReasoning is the reasoning text for suggestions created without the classifier.
const ManualReasoning = "Manually filled"

// FileSuggestion is the proposed classification for one selected file.
// IDs form a strict hierarchy: the category belongs to the universe and the
// product belongs to the category. Names mirror the IDs for display and may
// lag until a lookup resolves them.
type FileSuggestion struct {
	UniverseID           *int         `json:"universe_id"`
	CategoryID           *int         `json:"category_id"`
	ProductID            *int         `json:"product_id"`
	Filename             string       `json:"filename"`
	UniverseName         string       `json:"universe_name,omitempty"`
	CategoryName         string       `json:"category_name,omitempty"`
	ProductName          string       `json:"product_name,omitempty"`
	Reasoning            string       `json:"reasoning,omitempty"`
	MaterialType         MaterialType `json:"material_type,omitempty"`
	Audience             Audience     `json:"audience,omitempty"`
	OtherTypeDescription string       `json:"other_type_description,omitempty"`
	Confidence           float64      `json:"confidence"`
}

// IsManual reports whether the suggestion carries the manual sentinel confidence.
func (s FileSuggestion) IsManual() bool {
	return s.Confidence == ManualConfidence
}

// MissingFields lists the required fields that are not set.
func (s FileSuggestion) MissingFields() []string {
	var missing []string
	if s.UniverseID == nil {
		missing = append(missing, "universe_id")
	}
	if s.CategoryID == nil {
		missing = append(missing, "category_id")
	}
	if s.ProductID == nil {
		missing = append(missing, "product_id")
	}
	if s.MaterialType == "" {
		missing = append(missing, "material_type")
	}
	if s.Audience == "" {
		missing = append(missing, "audience")
	}
	if s.MaterialType == MaterialOther && s.OtherTypeDescription == "" {
		missing = append(missing, "other_type_description")
	}
	return missing
}

// HasRequiredFields reports whether every field needed for upload is present.
func (s FileSuggestion) HasRequiredFields() bool {
	return len(s.MissingFields()) == 0
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
