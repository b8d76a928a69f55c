package classify

import (
	"fmt"
	"strings"
)

// DocType is the contract document type code.
type DocType string

const (
	TypeMSA      DocType = "MSA"
	TypeSOW      DocType = "SOW"
	TypeNDA      DocType = "NDA"
	TypePO       DocType = "PO"
	TypeAMD      DocType = "AMD"
	TypeLicense  DocType = "LICENSE"
	TypeContract DocType = "CONTRACT"
	TypeOther    DocType = "OTHER"
)

// DocTypes lists every type code, OTHER last.
func DocTypes() []DocType {
	return []DocType{TypeMSA, TypeSOW, TypeNDA, TypePO, TypeAMD, TypeLicense, TypeContract, TypeOther}
}

// ParseDocType validates s as a type code, ignoring case.
func ParseDocType(s string) (DocType, error) {
	t := DocType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range DocTypes() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("classify: unknown document type %q", s)
}

// RetentionCategory is the destruction-scheduling bucket of a document.
type RetentionCategory string

const (
	LongTerm     RetentionCategory = "LONG_TERM"
	ShortTerm    RetentionCategory = "SHORT_TERM"
	Indefinite   RetentionCategory = "INDEFINITE"
	TiedToParent RetentionCategory = "TIED_TO_PARENT"
)

// Categories lists every retention category.
func Categories() []RetentionCategory {
	return []RetentionCategory{LongTerm, ShortTerm, Indefinite, TiedToParent}
}

// ParseCategory validates s as a retention category, ignoring case.
func ParseCategory(s string) (RetentionCategory, error) {
	c := RetentionCategory(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Categories() {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("classify: unknown retention category %q", s)
}

// Classification is the type decision for one document together with the
// retention policy that follows from it.
type Classification struct {
	DocumentType              DocType           `json:"document_type"`
	RetentionCategory         RetentionCategory `json:"retention_category"`
	DestructionReviewRequired bool              `json:"destruction_review_required"`
}

type retention struct {
	category RetentionCategory
	review   bool
}

var retentionTable = map[DocType]retention{
	TypeMSA:      {LongTerm, true},
	TypeContract: {LongTerm, true},
	TypeSOW:      {TiedToParent, false},
	TypeAMD:      {TiedToParent, false},
	TypeNDA:      {Indefinite, false},
	TypeLicense:  {Indefinite, false},
	TypePO:       {ShortTerm, true},
	TypeOther:    {ShortTerm, false},
}

// For returns the classification of t. The retention fields are derived
// from t alone; an unrecognized type is treated as OTHER.
func For(t DocType) Classification {
	r, ok := retentionTable[t]
	if !ok {
		t = TypeOther
		r = retentionTable[TypeOther]
	}
	return Classification{DocumentType: t, RetentionCategory: r.category, DestructionReviewRequired: r.review}
}
