package artifact

import (
	"bytes"
	"context"
	"text/template"
	"time"

	dmodels "civreg/internal/document/models"
	"civreg/internal/document/templates"
	rmodels "civreg/internal/registration/models"
	derrors "civreg/pkg/domain-errors"
)

// Composer renders the document body from its template and stores the result.
type Composer struct {
	catalog templates.Catalog
	store   Store
}

func NewComposer(catalog templates.Catalog, store Store) *Composer {
	return &Composer{catalog: catalog, store: store}
}

// templateData is the flat field set templates may reference.
type templateData struct {
	FirstName    string
	LastName     string
	NationalID   string
	Address      string
	Purpose      string
	IssuedAt     string
	SignatureRef string
	StampRef     string
}

// Compose renders the artifact for an approved request and stores it,
// returning its reference. Any failure aborts the approval: the request must
// not reach APPROVED without a composed artifact.
func (c *Composer) Compose(
	ctx context.Context,
	req *dmodels.Request,
	citizen *rmodels.Citizen,
	signatureRef, stampRef string,
	issuedAt time.Time,
) (string, error) {
	tmpl, err := c.catalog.GetTemplate(req.Type)
	if err != nil {
		return "", err
	}

	parsed, err := template.New(string(req.Type)).Parse(tmpl.Body)
	if err != nil {
		return "", derrors.Wrap(err, derrors.CodeInternal, "document template is malformed")
	}

	var buf bytes.Buffer
	err = parsed.Execute(&buf, templateData{
		FirstName:    citizen.FirstName,
		LastName:     citizen.LastName,
		NationalID:   citizen.NationalID,
		Address:      citizen.Address,
		Purpose:      req.Purpose,
		IssuedAt:     issuedAt.Format("2006-01-02"),
		SignatureRef: signatureRef,
		StampRef:     stampRef,
	})
	if err != nil {
		return "", derrors.Wrap(err, derrors.CodeInternal, "document composition failed")
	}

	ref, err := c.store.Put(ctx, KindDocument, buf.Bytes())
	if err != nil {
		return "", derrors.Wrap(err, derrors.CodeStorage, "failed to store composed document")
	}
	return ref, nil
}
