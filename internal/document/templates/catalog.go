// Package templates holds the document template catalog. Templates are fixed
// per document type; bodies use text/template syntax over the citizen fields
// listed in RequiredFields.
package templates

import (
	"civreg/internal/document/models"
	derrors "civreg/pkg/domain-errors"
)

// Template pairs the fields a document needs with its body text.
type Template struct {
	Type           models.DocumentType
	RequiredFields []string
	Body           string
}

// Catalog resolves templates by document type.
type Catalog interface {
	GetTemplate(docType models.DocumentType) (Template, error)
}

// Static is the built-in catalog covering every type in the fixed enum.
type Static struct {
	templates map[models.DocumentType]Template
}

func NewStatic() *Static {
	return &Static{templates: map[models.DocumentType]Template{
		models.TypeIntroductionLetter: {
			Type:           models.TypeIntroductionLetter,
			RequiredFields: []string{"FirstName", "LastName", "NationalID", "Address"},
			Body: `TO WHOM IT MAY CONCERN

This is to introduce {{.FirstName}} {{.LastName}}, holder of national
identity number {{.NationalID}}, resident of {{.Address}}.

Purpose: {{.Purpose}}

Issued on {{.IssuedAt}}.

Signature: {{.SignatureRef}}
Official stamp: {{.StampRef}}
`,
		},
		models.TypeResidenceCertificate: {
			Type:           models.TypeResidenceCertificate,
			RequiredFields: []string{"FirstName", "LastName", "NationalID", "Address"},
			Body: `CERTIFICATE OF RESIDENCE

This certifies that {{.FirstName}} {{.LastName}} (national identity number
{{.NationalID}}) is a registered resident of {{.Address}}.

Purpose: {{.Purpose}}

Issued on {{.IssuedAt}}.

Signature: {{.SignatureRef}}
Official stamp: {{.StampRef}}
`,
		},
		models.TypeSponsorshipLetter: {
			Type:           models.TypeSponsorshipLetter,
			RequiredFields: []string{"FirstName", "LastName", "NationalID"},
			Body: `SPONSORSHIP LETTER

{{.FirstName}} {{.LastName}} (national identity number {{.NationalID}}) is
known to this office and is hereby sponsored for the stated purpose.

Purpose: {{.Purpose}}

Issued on {{.IssuedAt}}.

Signature: {{.SignatureRef}}
Official stamp: {{.StampRef}}
`,
		},
		models.TypeGoodConductReferral: {
			Type:           models.TypeGoodConductReferral,
			RequiredFields: []string{"FirstName", "LastName", "NationalID"},
			Body: `GOOD CONDUCT REFERRAL

This office refers {{.FirstName}} {{.LastName}} (national identity number
{{.NationalID}}) to the relevant authority for a certificate of good conduct.

Purpose: {{.Purpose}}

Issued on {{.IssuedAt}}.

Signature: {{.SignatureRef}}
Official stamp: {{.StampRef}}
`,
		},
	}}
}

func (s *Static) GetTemplate(docType models.DocumentType) (Template, error) {
	tmpl, ok := s.templates[docType]
	if !ok {
		return Template{}, derrors.Newf(derrors.CodeValidation, "no template for document type %s", docType)
	}
	return tmpl, nil
}
