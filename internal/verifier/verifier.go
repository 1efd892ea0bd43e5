// Package verifier orchestrates OTP issuance, verification, and the
// mirroring of verification state into the durable profile store.
package verifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/RUGU2211/beachguardians-verify/internal/codegen"
	"github.com/RUGU2211/beachguardians-verify/internal/profile"
	"github.com/RUGU2211/beachguardians-verify/internal/store"
	"github.com/RUGU2211/beachguardians-verify/pkg/models"
	"github.com/zerodha/logf"
)

// Terminal error classes surfaced to callers. Each maps to a
// machine-readable reason on the HTTP layer.
var (
	// ErrValidation is thrown on malformed input. No store access happens.
	ErrValidation = errors.New("invalid input")

	// ErrNotFound is thrown when no challenge is outstanding for the
	// subject. The subject has to request a new code.
	ErrNotFound = errors.New("no challenge outstanding; request a new code")

	// ErrExpired is thrown when the challenge is past its expiry. The
	// challenge is deleted on detection so an expired code can't be
	// replayed.
	ErrExpired = errors.New("the code has expired; request a new one")

	// ErrMismatch is thrown on a wrong code. The challenge is preserved
	// so the subject can retry within the expiry window.
	ErrMismatch = errors.New("incorrect code")

	// ErrStoreUnavailable is thrown when the gating store is
	// unreachable. Verification never claims success without a durable
	// write.
	ErrStoreUnavailable = errors.New("verification store unavailable")

	// ErrDelivery is thrown when the notification dispatch fails after
	// the challenge was durably recorded. The challenge remains valid
	// and a retried issuance overwrites and resends.
	ErrDelivery = errors.New("error delivering the code")
)

// Templates holds the rendered message pair for one subject class.
type Templates struct {
	Subject *template.Template
	Body    *template.Template
}

// RetryPolicy bounds the profile replication reads on session start.
// Delays grow linearly: attempt index times BaseDelay.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
}

// Verifier wires the code generator, the verification store, the
// notification provider, and the profile stores together. All
// operations are request-scoped; the only state lives in the external
// stores.
type Verifier struct {
	gen      *codegen.Generator
	otps     store.Store
	profiles profile.Store
	mirror   profile.Writer
	provider models.Provider
	tpls     map[string]*Templates
	retry    RetryPolicy
	lo       logf.Logger
}

// IssueReq is a request to issue and deliver a challenge.
type IssueReq struct {
	// Namespace is the subject class (models.NamespaceAdmin or
	// models.NamespaceVolunteer).
	Namespace string

	// ID is the subject key the challenge is filed under: the user id
	// for admins, the sanitized e-mail for volunteers.
	ID string

	// To is the delivery address.
	To string

	// Name is the volunteer's display name, carried in the challenge to
	// decouple it from a not-yet-created account.
	Name string
}

type tplData struct {
	Name    string
	Code    string
	Channel string
	TTL     time.Duration
	Minutes int
}

// New returns a Verifier.
func New(gen *codegen.Generator, otps store.Store, profiles profile.Store,
	mirror profile.Writer, provider models.Provider, tpls map[string]*Templates,
	retry RetryPolicy, lo logf.Logger) *Verifier {
	return &Verifier{
		gen:      gen,
		otps:     otps,
		profiles: profiles,
		mirror:   mirror,
		provider: provider,
		tpls:     tpls,
		retry:    retry,
		lo:       lo,
	}
}

// Issue generates a challenge, records it in the verification store,
// and delivers it. The store write is an idempotent overwrite: any
// prior challenge under the same key is invalidated. If the write
// fails, no notification is attempted.
func (v *Verifier) Issue(ctx context.Context, req IssueReq) error {
	if req.Namespace != models.NamespaceAdmin && req.Namespace != models.NamespaceVolunteer {
		return fmt.Errorf("%w: unknown subject class", ErrValidation)
	}
	if req.ID == "" {
		return fmt.Errorf("%w: subject key is empty", ErrValidation)
	}
	if err := v.provider.ValidateAddress(req.To); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if req.Namespace == models.NamespaceVolunteer && req.Name == "" {
		return fmt.Errorf("%w: name is empty", ErrValidation)
	}

	code, expiresAt, err := v.gen.Generate()
	if err != nil {
		return err
	}

	c := models.Challenge{
		Namespace: req.Namespace,
		ID:        req.ID,
		OTP:       code,
		To:        req.To,
		Name:      req.Name,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}

	// Never send a code that was not durably recorded.
	if err := v.otps.Set(req.Namespace, req.ID, c); err != nil {
		v.lo.Error("error writing challenge", "error", err, "namespace", req.Namespace)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	subject, body, err := v.render(req.Namespace, c)
	if err != nil {
		return err
	}

	v.lo.Debug("sending otp", "to", c.To, "provider", v.provider.ID(), "namespace", req.Namespace)
	if err := v.provider.Push(c.To, subject, body); err != nil {
		// The challenge stays valid; a retried issuance overwrites and
		// resends.
		v.lo.Error("error sending otp", "error", err, "provider", v.provider.ID())
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	return nil
}

// Verify checks a submitted code against the outstanding challenge for
// the subject and, on success, consumes it and mirrors the verification
// flags into the profile store.
//
// The challenge is consumed on exactly two outcomes: a successful match
// and a detected expiry. It is preserved on mismatch, bounding retries
// only by the expiry window.
func (v *Verifier) Verify(ctx context.Context, namespace, id, code string) error {
	if id == "" || code == "" {
		return fmt.Errorf("%w: subject key or code is empty", ErrValidation)
	}

	c, err := v.otps.Get(namespace, id)
	if err != nil {
		if err == store.ErrNotExist {
			return ErrNotFound
		}
		v.lo.Error("error reading challenge", "error", err, "namespace", namespace)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if c.Expired(time.Now()) {
		// Cleanup prevents replay of an expired code even if somehow
		// resubmitted.
		if err := v.otps.Delete(namespace, id); err != nil {
			v.lo.Error("error deleting expired challenge", "error", err, "namespace", namespace)
		}
		return ErrExpired
	}

	if c.OTP != code {
		return ErrMismatch
	}

	// Single-use enforcement. The conditional delete refuses to consume
	// a challenge re-issued since the read above; the subject then has
	// to use the freshly issued code.
	if err := v.otps.DeleteIfMatch(namespace, id, code); err != nil {
		if err == store.ErrNotExist {
			return ErrNotFound
		}
		v.lo.Error("error consuming challenge", "error", err, "namespace", namespace)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	v.mirrorFlags(ctx, namespace, c)
	return nil
}

// mirrorFlags propagates the verification flags of a consumed challenge
// into the profile store. The gating check already succeeded, so
// nothing here fails the verification: role lookup failure degrades to
// a role-unknown merge and the write target absorbs store failures via
// its fallback.
func (v *Verifier) mirrorFlags(ctx context.Context, namespace string, c models.Challenge) {
	updates := map[string]interface{}{
		"is_verified": true,
	}

	switch namespace {
	case models.NamespaceAdmin:
		p, err := v.profiles.Get(ctx, c.ID)
		if err != nil {
			// Role unknown: the subject stays verified in the general
			// sense and the elevated flag is set on the next pass once
			// the profile is readable.
			v.lo.Error("error resolving role, mirroring as role-unknown", "error", err, "user_id", c.ID)
		} else if p.Role == models.RoleAdmin {
			// The elevated flag always travels with the general one.
			updates["is_admin_verified"] = true
		}
	case models.NamespaceVolunteer:
		// Pre-account subject: carry the challenge metadata so the
		// profile materializes with it.
		updates["role"] = models.RoleVolunteer
		updates["email"] = c.To
		if c.Name != "" {
			updates["name"] = c.Name
		}
	}

	if err := v.mirror.Merge(ctx, c.ID, updates); err != nil {
		// PrimaryWithFallback absorbs store failures; anything else is
		// worth a log line but the user-visible verification stands.
		v.lo.Error("error mirroring verification flags", "error", err, "user_id", c.ID)
	}
}

// render compiles the subject-class message templates.
func (v *Verifier) render(namespace string, c models.Challenge) (string, []byte, error) {
	var (
		subj = &bytes.Buffer{}
		out  = &bytes.Buffer{}

		data = tplData{
			Name:    c.Name,
			Code:    c.OTP,
			Channel: v.provider.ChannelName(),
			TTL:     v.gen.TTL(),
			Minutes: int(v.gen.TTL().Minutes()),
		}
	)

	tpl, ok := v.tpls[namespace]
	if !ok {
		return "", nil, fmt.Errorf("no message templates for namespace '%s'", namespace)
	}

	if tpl.Subject != nil {
		if err := tpl.Subject.Execute(subj, data); err != nil {
			return "", nil, err
		}
	}
	if tpl.Body != nil {
		if err := tpl.Body.Execute(out, data); err != nil {
			return "", nil, err
		}
	}

	return subj.String(), out.Bytes(), nil
}
