// Package lifecycle orchestrates the gate entry state machine for one
// session: drafts, reference population, validation, and the commits that
// create, change, cancel and close entries at the system of record.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/gatepass/internal/access"
	"github.com/alfredjeanlab/gatepass/internal/events"
	"github.com/alfredjeanlab/gatepass/internal/gateway"
	"github.com/alfredjeanlab/gatepass/internal/idgen"
	"github.com/alfredjeanlab/gatepass/internal/lock"
	"github.com/alfredjeanlab/gatepass/internal/model"
	"github.com/alfredjeanlab/gatepass/internal/quantity"
	"github.com/alfredjeanlab/gatepass/internal/resolver"
	"github.com/alfredjeanlab/gatepass/internal/session"
)

// Authorizer decides whether a session may use a permission key.
type Authorizer interface {
	Authorize(sess *session.Session, key string) error
}

// Journal receives every committed transition. Record is best effort and
// must not fail the commit that triggered it.
type Journal interface {
	Record(ctx context.Context, topic string, entry *model.Entry, actor string, event any)
}

type nopJournal struct{}

func (nopJournal) Record(context.Context, string, *model.Entry, string, any) {}

// Deps are the collaborators of a Controller. Gateway and Policy are
// required; the rest have defaults.
type Deps struct {
	Gateway  gateway.Gateway
	Resolver *resolver.Resolver
	Policy   Authorizer
	Journal  Journal
	Locker   lock.Locker
	LockTTL  time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
	NewID    func() (string, error)
}

// Controller owns the single draft of one session and allows one
// outstanding call at a time.
type Controller struct {
	sess *session.Session
	deps Deps
	log  *slog.Logger

	mu       sync.Mutex
	phase    Phase
	draft    *model.Draft
	last     *model.Entry
	gen      uint64 // bumped by Discard
	call     uint64 // id of the outstanding call, 0 when none
	nextCall uint64
	cancel   context.CancelFunc
}

// New returns a controller bound to sess.
func New(sess *session.Session, deps Deps) (*Controller, error) {
	if sess == nil {
		return nil, errors.New("lifecycle: session is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("lifecycle: gateway is required")
	}
	if deps.Policy == nil {
		return nil, errors.New("lifecycle: policy is required")
	}
	if deps.Resolver == nil {
		deps.Resolver = resolver.New(deps.Gateway, nil)
	}
	if deps.Journal == nil {
		deps.Journal = nopJournal{}
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocalLocker()
	}
	if deps.LockTTL <= 0 {
		deps.LockTTL = lock.DefaultTTL
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = idgen.Draft
	}
	return &Controller{
		sess:  sess,
		deps:  deps,
		log:   deps.Logger.With("session", sess.ID, "user", sess.User),
		phase: PhaseIdle,
	}, nil
}

// Session returns the session the controller is bound to.
func (c *Controller) Session() *session.Session { return c.sess }

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Busy reports whether a call is outstanding.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.call != 0
}

// Draft returns a copy of the open draft, or nil.
func (c *Controller) Draft() *model.Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft == nil {
		return nil
	}
	return c.draft.Clone()
}

// Last returns a copy of the entry most recently committed through this
// controller, or nil.
func (c *Controller) Last() *model.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	return c.last.Clone()
}

// Discard drops the open draft and abandons any outstanding call. A call
// that completes afterwards returns ErrAbandoned and changes nothing.
func (c *Controller) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.call = 0
	c.draft = nil
	c.phase = PhaseIdle
}

// call is one outstanding remote operation.
type call struct {
	ctx context.Context
	id  uint64
	gen uint64
}

func (c *Controller) begin(ctx context.Context) (*call, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.call != 0 {
		return nil, ErrBusy
	}
	c.nextCall++
	cctx, cancel := context.WithCancel(ctx)
	c.call, c.cancel = c.nextCall, cancel
	return &call{ctx: cctx, id: c.call, gen: c.gen}, nil
}

func (c *Controller) end(cl *call) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.call != cl.id {
		return
	}
	c.cancel()
	c.call, c.cancel = 0, nil
}

// with runs fn under the controller lock.
func (c *Controller) with(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn()
}

// settle runs fn under the lock unless the call was abandoned.
func (c *Controller) settle(cl *call, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != cl.gen {
		return ErrAbandoned
	}
	return fn()
}

func (c *Controller) move(to Phase) error {
	if !CanMove(c.phase, to) {
		return &TransitionError{From: c.phase, To: to}
	}
	c.phase = to
	return nil
}

func (c *Controller) authorize(key string) error {
	return c.deps.Policy.Authorize(c.sess, key)
}

func (c *Controller) record(ctx context.Context, topic string, e *model.Entry, event any) {
	c.deps.Journal.Record(ctx, topic, e, c.sess.User, event)
}

func (c *Controller) obtain(cl *call, id string) (lock.Lease, error) {
	return c.deps.Locker.Obtain(cl.ctx, lock.Key(id), c.deps.LockTTL)
}

func (c *Controller) release(lease lock.Lease, id string) {
	if err := lease.Release(context.Background()); err != nil {
		c.log.Warn("failed to release entry lock", "id", id, "error", err)
	}
}

// validate returns the draft as an entry when it passes the structural and
// quantity rules. All failures come back together in one *model.ValidationError.
func validate(d *model.Draft) (*model.Entry, error) {
	e := d.Entry()
	var ve model.ValidationError
	for _, err := range []error{
		model.ValidateStructure(&e.Header, e.Items),
		quantity.Validate(d.Mode, e.Items),
	} {
		if !ve.Merge(err) {
			return nil, err
		}
	}
	if err := ve.Err(); err != nil {
		return nil, err
	}
	return e, nil
}

// NewDraft opens a blank manual draft checked in now. An empty plant takes
// the session's plant.
func (c *Controller) NewDraft(kind model.DocumentKind, plant string) (*model.Draft, error) {
	if !kind.IsValid() {
		var ve model.ValidationError
		ve.Add("kind", model.CodeInvalid, fmt.Sprintf("invalid value %q", kind))
		return nil, &ve
	}
	if err := c.authorize(access.SaveKey(kind)); err != nil {
		return nil, err
	}
	if plant == "" {
		plant = c.sess.Plant
	}
	id, err := c.deps.NewID()
	if err != nil {
		return nil, err
	}

	var out *model.Draft
	err = c.with(func() error {
		if c.call != 0 {
			return ErrBusy
		}
		if c.phase.HasDraft() {
			return ErrDraftOpen
		}
		if err := c.move(PhaseDraft); err != nil {
			return err
		}
		c.draft = model.NewDraft(id, idgen.Token(), kind, plant, c.deps.Now())
		c.draft.Header.CreatedBy = c.sess.User
		out = c.draft.Clone()
		return nil
	})
	return out, err
}

// Edit applies fn to a copy of the open draft and keeps the copy when fn
// succeeds. Edits are refused while a call is outstanding.
func (c *Controller) Edit(fn func(d *model.Draft) error) (*model.Draft, error) {
	var out *model.Draft
	err := c.with(func() error {
		if c.call != 0 {
			return ErrBusy
		}
		if c.draft == nil {
			return ErrNoDraft
		}
		work := c.draft.Clone()
		if err := fn(work); err != nil {
			return err
		}
		to := PhaseDraft
		if work.Mode == model.ModeReference {
			to = PhaseFetched
		}
		if err := c.move(to); err != nil {
			return err
		}
		c.draft = work
		out = work.Clone()
		return nil
	})
	return out, err
}

// ResetToManual drops the fetched reference and its rows. Only kinds that
// may be keyed in manually can be reset.
func (c *Controller) ResetToManual() (*model.Draft, error) {
	return c.Edit(func(d *model.Draft) error {
		if d.Origin == model.OriginChange {
			return ErrWrongOrigin
		}
		if !d.Header.Kind.AllowsManual() {
			return fmt.Errorf("%s: %w", d.Header.Kind, model.ErrReferenceRequired)
		}
		d.ResetToManual()
		return nil
	})
}

// FetchReference populates the draft from a reference document. A draft
// already in reference mode, or one whose reference was not found, is left
// blank in manual mode on failure. Kinds without a reference and empty
// numbers are refused before any call and leave the draft as it was.
func (c *Controller) FetchReference(ctx context.Context, number string) (*resolver.Resolution, error) {
	cl, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer c.end(cl)

	var kind model.ReferenceKind
	var plant string
	err = c.with(func() error {
		if c.draft == nil {
			return ErrNoDraft
		}
		if c.draft.Origin == model.OriginChange {
			return ErrWrongOrigin
		}
		if err := c.authorize(access.SaveKey(c.draft.Header.Kind)); err != nil {
			return err
		}
		if !CanMove(c.phase, PhaseFetched) {
			return &TransitionError{From: c.phase, To: PhaseFetched}
		}
		kind, plant = c.draft.Header.Kind.ReferenceKind(), c.draft.Header.Plant
		if kind == model.ReferenceNone {
			return fmt.Errorf("%w: %s", resolver.ErrNoReference, c.draft.Header.Kind)
		}
		if strings.TrimSpace(number) == "" {
			var ve model.ValidationError
			ve.Add("reference_number", model.CodeRequired, "is required")
			return &ve
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res, fetchErr := c.deps.Resolver.Resolve(cl.ctx, kind, number, plant)

	err = c.settle(cl, func() error {
		if fetchErr != nil {
			if c.draft.Mode == model.ModeReference || errors.Is(fetchErr, gateway.ErrReferenceNotFound) {
				c.draft.ResetToManual()
				_ = c.move(PhaseDraft)
			}
			return rejected(fetchErr)
		}
		if err := resolver.Apply(c.draft, res); err != nil {
			_ = c.move(PhaseDraft)
			return err
		}
		return c.move(PhaseFetched)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ApplyMaterial fills a manual line from the plant's material catalog.
func (c *Controller) ApplyMaterial(ctx context.Context, line int, code string) (model.Material, error) {
	cl, err := c.begin(ctx)
	if err != nil {
		return model.Material{}, err
	}
	defer c.end(cl)

	var work *model.Draft
	if err := c.with(func() error {
		if c.draft == nil {
			return ErrNoDraft
		}
		work = c.draft.Clone()
		return nil
	}); err != nil {
		return model.Material{}, err
	}

	m, lookupErr := c.deps.Resolver.ApplyMaterial(cl.ctx, work, line, code)

	err = c.settle(cl, func() error {
		if lookupErr != nil {
			return lookupErr
		}
		if err := c.move(PhaseDraft); err != nil {
			return err
		}
		c.draft = work
		return nil
	})
	if err != nil {
		return model.Material{}, err
	}
	return m, nil
}

// Validate checks the open draft without committing it.
func (c *Controller) Validate() error {
	return c.with(func() error {
		if c.call != 0 {
			return ErrBusy
		}
		if c.draft == nil {
			return ErrNoDraft
		}
		if _, err := validate(c.draft); err != nil {
			return err
		}
		return c.move(PhaseValidated)
	})
}

// Create commits a new draft. Validation runs first and no call is made
// when it fails. On success the entry carries the number assigned by the
// system of record and the draft is cleared.
func (c *Controller) Create(ctx context.Context) (*Result, error) {
	cl, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer c.end(cl)

	var entry *model.Entry
	var token string
	err = c.with(func() error {
		d := c.draft
		if d == nil {
			return ErrNoDraft
		}
		if d.Origin == model.OriginChange {
			return ErrWrongOrigin
		}
		if err := c.authorize(access.SaveKey(d.Header.Kind)); err != nil {
			return err
		}
		e, err := validate(d)
		if err != nil {
			return err
		}
		if err := c.move(PhaseValidated); err != nil {
			return err
		}
		e.Header.CreatedBy = c.sess.User
		e.Header.CreatedAt = c.deps.Now()
		entry, token = e, d.Token
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp, callErr := c.deps.Gateway.CreateEntry(cl.ctx, entry, token)

	var res *Result
	err = c.settle(cl, func() error {
		if callErr != nil {
			return callErr
		}
		r, err := Interpret(resp, true)
		if err != nil {
			return err
		}
		entry.Header.ID = resp.DocumentNumber
		entry.Header.Status = model.StatusSaved
		if err := c.move(PhaseSaved); err != nil {
			return err
		}
		c.draft = nil
		c.last = entry.Clone()
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Entry = entry
	c.log.Info("entry created", "id", entry.Header.ID, "kind", entry.Header.Kind, "outcome", res.Outcome)
	c.record(ctx, events.TopicEntryCreated, entry, events.EntryCreated{Entry: entry, Warnings: res.Warnings})
	return res, nil
}

// FetchForChange loads a committed entry into an editable draft.
func (c *Controller) FetchForChange(ctx context.Context, id string) (*model.Draft, error) {
	if err := c.authorize(access.KeyChangeFetch); err != nil {
		return nil, err
	}
	draftID, err := c.deps.NewID()
	if err != nil {
		return nil, err
	}
	cl, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer c.end(cl)

	if err := c.with(c.noDraft); err != nil {
		return nil, err
	}

	cur, fetchErr := c.deps.Gateway.FetchForChange(cl.ctx, id)

	var out *model.Draft
	err = c.settle(cl, func() error {
		if fetchErr != nil {
			return rejected(fetchErr)
		}
		if !cur.Header.Status.IsCommitted() {
			return fmt.Errorf("entry %s is %s: %w", id, cur.Header.Status, ErrTerminal)
		}
		if err := c.move(PhaseDraft); err != nil {
			return err
		}
		c.draft = model.DraftFromEntry(draftID, idgen.Token(), model.OriginChange, cur)
		out = c.draft.Clone()
		return nil
	})
	return out, err
}

func (c *Controller) noDraft() error {
	if c.phase.HasDraft() {
		return ErrDraftOpen
	}
	return nil
}

// Save commits the changes made to an entry loaded by FetchForChange.
func (c *Controller) Save(ctx context.Context) (*Result, error) {
	cl, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer c.end(cl)

	var entry *model.Entry
	var token string
	err = c.with(func() error {
		d := c.draft
		if d == nil {
			return ErrNoDraft
		}
		if d.Origin != model.OriginChange {
			return ErrWrongOrigin
		}
		if err := c.authorize(access.KeyChangeSave); err != nil {
			return err
		}
		if !d.Header.Status.IsCommitted() {
			return fmt.Errorf("entry %s is %s: %w", d.Header.ID, d.Header.Status, ErrTerminal)
		}
		e, err := validate(d)
		if err != nil {
			return err
		}
		if err := c.move(PhaseValidated); err != nil {
			return err
		}
		now := c.deps.Now()
		e.Header.ChangedBy = c.sess.User
		e.Header.ChangedAt = &now
		entry, token = e, d.Token
		return nil
	})
	if err != nil {
		return nil, err
	}

	id := entry.Header.ID
	lease, err := c.obtain(cl, id)
	if err != nil {
		return nil, err
	}
	defer c.release(lease, id)

	resp, callErr := c.deps.Gateway.ChangeEntry(cl.ctx, entry, token)

	var res *Result
	err = c.settle(cl, func() error {
		if callErr != nil {
			return callErr
		}
		r, err := Interpret(resp, false)
		if err != nil {
			return err
		}
		entry.Header.Status = model.StatusChanged
		if err := c.move(PhaseChanged); err != nil {
			return err
		}
		if err := c.move(PhaseSaved); err != nil {
			return err
		}
		c.draft = nil
		c.last = entry.Clone()
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Entry = entry
	c.log.Info("entry changed", "id", id, "outcome", res.Outcome)
	c.record(ctx, events.TopicEntryChanged, entry, events.EntryChanged{Entry: entry, Warnings: res.Warnings})
	return res, nil
}

// Cancel cancels a committed entry. The reason must be non-empty and the
// caller must confirm; otherwise nothing is sent.
func (c *Controller) Cancel(ctx context.Context, id, reason string, confirmed bool) (*Result, error) {
	if err := c.authorize(access.KeyCancelExecute); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	var ve model.ValidationError
	if strings.TrimSpace(id) == "" {
		ve.Add("id", model.CodeRequired, "is required")
	}
	if reason == "" {
		ve.Add("reason", model.CodeRequired, "a cancellation reason is required")
	}
	if !confirmed {
		ve.Add("confirmed", model.CodeRequired, "cancellation must be confirmed")
	}
	if err := ve.Err(); err != nil {
		return nil, err
	}

	cl, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer c.end(cl)

	if err := c.with(c.noDraft); err != nil {
		return nil, err
	}
	lease, err := c.obtain(cl, id)
	if err != nil {
		return nil, err
	}
	defer c.release(lease, id)

	cur, fetchErr := c.deps.Gateway.FetchForChange(cl.ctx, id)
	err = c.settle(cl, func() error {
		if fetchErr != nil {
			return rejected(fetchErr)
		}
		if cur.Header.Status.IsTerminal() {
			return fmt.Errorf("entry %s is %s: %w", id, cur.Header.Status, ErrTerminal)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := c.deps.Now()
	resp, callErr := c.deps.Gateway.CancelEntry(cl.ctx, gateway.CancelRequest{
		ID:          id,
		Reason:      reason,
		CancelledBy: c.sess.User,
		CancelledAt: now,
	})

	var res *Result
	entry := cur.Clone()
	err = c.settle(cl, func() error {
		if callErr != nil {
			return callErr
		}
		r, err := Interpret(resp, false)
		if err != nil {
			return err
		}
		entry.Header.Status = model.StatusCancelled
		entry.Header.CancelReason = reason
		entry.Header.CancelledBy = c.sess.User
		entry.Header.CancelledAt = &now
		if err := c.move(PhaseCancelled); err != nil {
			return err
		}
		c.last = entry.Clone()
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Entry = entry
	c.log.Info("entry cancelled", "id", id, "reason", reason)
	c.record(ctx, events.TopicEntryCancelled, entry, events.EntryCancelled{Entry: entry, Reason: reason, CancelledBy: c.sess.User})
	return res, nil
}

// RecordExit checks a vehicle out. A zero at means now. The check-out time
// is set once; a second exit fails with ErrAlreadyExited.
func (c *Controller) RecordExit(ctx context.Context, id string, at time.Time) (*Result, error) {
	if err := c.authorize(access.KeyExitExecute); err != nil {
		return nil, err
	}
	if at.IsZero() {
		at = c.deps.Now()
	}

	cl, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer c.end(cl)

	if err := c.with(c.noDraft); err != nil {
		return nil, err
	}
	lease, err := c.obtain(cl, id)
	if err != nil {
		return nil, err
	}
	defer c.release(lease, id)

	cur, fetchErr := c.deps.Gateway.FetchForChange(cl.ctx, id)
	err = c.settle(cl, func() error {
		if fetchErr != nil {
			return rejected(fetchErr)
		}
		h := cur.Header
		switch {
		case h.CheckOutAt != nil || h.Status == model.StatusExited:
			return fmt.Errorf("entry %s: %w", id, ErrAlreadyExited)
		case !h.Status.IsCommitted():
			return fmt.Errorf("entry %s is %s: %w", id, h.Status, ErrTerminal)
		case at.Before(h.CheckInAt):
			var ve model.ValidationError
			ve.Add("check_out_at", model.CodeInvalid, "must not be before check-in")
			return &ve
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp, callErr := c.deps.Gateway.RecordExit(cl.ctx, gateway.ExitRequest{ID: id, CheckOutAt: at, RecordedBy: c.sess.User})

	var res *Result
	entry := cur.Clone()
	err = c.settle(cl, func() error {
		if callErr != nil {
			return callErr
		}
		r, err := Interpret(resp, false)
		if err != nil {
			return err
		}
		entry.Header.Status = model.StatusExited
		entry.Header.CheckOutAt = &at
		if err := c.move(PhaseExited); err != nil {
			return err
		}
		c.last = entry.Clone()
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Entry = entry
	c.log.Info("exit recorded", "id", id, "check_out_at", at)
	c.record(ctx, events.TopicEntryExited, entry, events.EntryExited{Entry: entry, CheckOutAt: at, Warnings: res.Warnings})
	return res, nil
}

// Display returns a read-only copy of an entry. Nothing local changes.
func (c *Controller) Display(ctx context.Context, id string) (*model.Entry, error) {
	if err := c.authorize(access.KeyDisplayView); err != nil {
		return nil, err
	}
	cl, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer c.end(cl)

	e, fetchErr := c.deps.Gateway.FetchForChange(cl.ctx, id)
	err = c.settle(cl, func() error { return rejected(fetchErr) })
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Print returns the rendered document of an entry.
func (c *Controller) Print(ctx context.Context, id string) (*gateway.Printable, error) {
	if err := c.authorize(access.KeyPrintView); err != nil {
		return nil, err
	}
	cl, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer c.end(cl)

	p, fetchErr := c.deps.Gateway.FetchPrintable(cl.ctx, id)
	err = c.settle(cl, func() error { return rejected(fetchErr) })
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Reuse opens a new draft copied from an existing entry, which is left
// untouched. Entries posted against a reference are re-resolved so the new
// draft carries current balances.
func (c *Controller) Reuse(ctx context.Context, id string) (*model.Draft, error) {
	if err := c.authorize(access.KeyReuseExecute); err != nil {
		return nil, err
	}
	draftID, err := c.deps.NewID()
	if err != nil {
		return nil, err
	}
	cl, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer c.end(cl)

	if err := c.with(c.noDraft); err != nil {
		return nil, err
	}

	src, fetchErr := c.deps.Gateway.FetchForChange(cl.ctx, id)
	if err := c.settle(cl, func() error { return rejected(fetchErr) }); err != nil {
		return nil, err
	}
	if err := c.authorize(access.SaveKey(src.Header.Kind)); err != nil {
		return nil, err
	}

	d := model.DraftFromEntry(draftID, idgen.Token(), model.OriginReuse, src)
	h := &d.Header
	h.ID = ""
	h.Status = model.StatusDraft
	h.CheckInAt = c.deps.Now()
	h.CheckOutAt = nil
	h.CreatedBy, h.CreatedAt = c.sess.User, time.Time{}
	h.ChangedBy, h.ChangedAt = "", nil
	h.CancelledBy, h.CancelReason, h.CancelledAt = "", "", nil

	var res *resolver.Resolution
	var resolveErr error
	if d.Mode == model.ModeReference {
		res, resolveErr = c.deps.Resolver.Resolve(cl.ctx, h.Kind.ReferenceKind(), h.ReferenceNumber(), h.Plant)
	}

	var out *model.Draft
	err = c.settle(cl, func() error {
		if resolveErr != nil {
			return rejected(resolveErr)
		}
		if res != nil {
			if err := resolver.Apply(d, res); err != nil {
				return err
			}
		}
		if err := c.move(PhaseDraft); err != nil {
			return err
		}
		if d.Mode == model.ModeReference {
			if err := c.move(PhaseFetched); err != nil {
				return err
			}
		}
		c.draft = d
		out = d.Clone()
		return nil
	})
	return out, err
}
