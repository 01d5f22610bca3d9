// Package resolver turns reference documents from the system of record into
// draft lines, and fills manual lines from the material catalog.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/gatepass/internal/gateway"
	"github.com/alfredjeanlab/gatepass/internal/model"
)

// ErrNoReference is returned for kinds that are never posted against a reference.
var ErrNoReference = errors.New("kind has no reference document")

// MaterialLookup finds a material in a plant's master.
type MaterialLookup interface {
	Lookup(ctx context.Context, plant, code string) (model.Material, error)
}

// Resolution is a reference document mapped to draft lines.
type Resolution struct {
	Reference    model.Reference   `json:"reference"`
	Counterparty model.Party       `json:"counterparty"`
	Items        []model.Item      `json:"items"`
	Warnings     []gateway.Message `json:"warnings,omitempty"`
}

// Resolver fetches reference documents and populates drafts.
type Resolver struct {
	gw        gateway.Gateway
	materials MaterialLookup
}

// New returns a resolver. materials may be nil when manual lines are never
// filled from the catalog.
func New(gw gateway.Gateway, materials MaterialLookup) *Resolver {
	return &Resolver{gw: gw, materials: materials}
}

// Resolve fetches the reference document and maps its lines 1:1 into items
// carrying the reference quantity, unit and balance, with no entered quantity.
// A reply with error messages or without lines is a *gateway.NotFoundError.
func (r *Resolver) Resolve(ctx context.Context, kind model.ReferenceKind, number, plant string) (*Resolution, error) {
	number = strings.TrimSpace(number)
	if kind == model.ReferenceNone || !kind.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrNoReference, kind)
	}
	if number == "" {
		var ve model.ValidationError
		ve.Add("reference_number", model.CodeRequired, "is required")
		return nil, &ve
	}

	ref, err := r.gw.FetchReference(ctx, gateway.ReferenceRequest{Kind: kind, Number: number, Plant: plant})
	if err != nil {
		return nil, err
	}
	if gateway.HasErrors(ref.Messages) || len(ref.Lines) == 0 {
		return nil, &gateway.NotFoundError{Kind: kind, Number: number, Messages: ref.Messages}
	}

	items := make([]model.Item, 0, len(ref.Lines))
	seen := make(map[int]bool, len(ref.Lines))
	for _, l := range ref.Lines {
		if l.LineNo <= 0 || seen[l.LineNo] {
			return nil, fmt.Errorf("reference %s: %w: bad line number %d", number, gateway.ErrMalformedResponse, l.LineNo)
		}
		if l.Balance.IsNegative() {
			return nil, fmt.Errorf("reference %s: %w: negative balance on line %d", number, gateway.ErrMalformedResponse, l.LineNo)
		}
		seen[l.LineNo] = true
		items = append(items, model.Item{
			LineNo:              l.LineNo,
			MaterialCode:        l.MaterialCode,
			MaterialDescription: l.MaterialDescription,
			ReferenceQty:        model.Qty(l.Quantity),
			ReferenceUnit:       l.Unit,
			BalanceQty:          model.Qty(l.Balance),
			Unit:                l.Unit,
		})
	}

	return &Resolution{
		Reference:    model.Reference{Kind: kind, Number: number},
		Counterparty: ref.Counterparty,
		Items:        items,
		Warnings:     ref.Messages,
	}, nil
}

// Apply puts a resolution on the draft, switching it to reference mode. If
// the draft cannot take it, the draft is reset to a clean manual state.
func Apply(d *model.Draft, res *Resolution) error {
	if err := d.ApplyReference(res.Reference.Number, res.Counterparty, res.Items); err != nil {
		d.ResetToManual()
		return err
	}
	return nil
}

// Populate resolves number against the draft's kind and plant and applies
// it. The draft is never left half populated: a failed lookup clears an
// earlier reference, and a reference that does not exist clears the rows.
// Rows keyed in by hand survive every other failure.
func (r *Resolver) Populate(ctx context.Context, d *model.Draft, number string) (*Resolution, error) {
	res, err := r.Resolve(ctx, d.Header.Kind.ReferenceKind(), number, d.Header.Plant)
	if err != nil {
		if d.Mode == model.ModeReference || errors.Is(err, gateway.ErrReferenceNotFound) {
			d.ResetToManual()
		}
		return nil, err
	}
	if err := Apply(d, res); err != nil {
		return nil, err
	}
	return res, nil
}

// TemplateRows appends n blank manual rows to the draft.
func TemplateRows(d *model.Draft, n int) error {
	for i := 0; i < n; i++ {
		if _, err := d.AppendItem(model.Item{}); err != nil {
			return err
		}
	}
	return nil
}

// ApplyMaterial fills a manual line's description and unit from the catalog.
func (r *Resolver) ApplyMaterial(ctx context.Context, d *model.Draft, line int, code string) (model.Material, error) {
	if d.Mode == model.ModeReference {
		return model.Material{}, model.ErrReadOnly
	}
	if r.materials == nil {
		return model.Material{}, fmt.Errorf("no material catalog configured")
	}
	if _, err := d.Index(line); err != nil {
		return model.Material{}, err
	}
	m, err := r.materials.Lookup(ctx, d.Header.Plant, code)
	if err != nil {
		return model.Material{}, err
	}
	if err := d.SetMaterial(line, m); err != nil {
		return model.Material{}, err
	}
	return m, nil
}
