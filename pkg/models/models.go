package models

import (
	"strings"
	"time"
)

// Subject class namespaces under which challenges are filed in the
// verification store. Admins are keyed by their user id, volunteers by
// their sanitized e-mail since an account may not exist yet.
const (
	NamespaceAdmin     = "admin"
	NamespaceVolunteer = "volunteer"
)

// Profile roles.
const (
	RoleAdmin     = "admin"
	RoleVolunteer = "volunteer"
)

// Challenge is one outstanding OTP verification attempt. At most one
// live challenge exists per (namespace, id); a re-issuance overwrites
// any prior one.
type Challenge struct {
	Namespace string    `redis:"-" json:"namespace"`
	ID        string    `redis:"-" json:"id"`
	OTP       string    `redis:"otp" json:"otp"`
	To        string    `redis:"to" json:"to"`
	Name      string    `redis:"name" json:"name"`
	CreatedAt time.Time `redis:"-" json:"created_at"`
	ExpiresAt time.Time `redis:"-" json:"expires_at"`
}

// Expired reports whether the challenge is past its expiry at the
// given instant.
func (c Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Profile is the durable profile record subset this service reads and
// mirrors into. IsAdminVerified is only meaningful for admin roles and
// always implies IsVerified.
type Profile struct {
	UserID          string `json:"user_id" dynamodbav:"user_id"`
	Email           string `json:"email" dynamodbav:"email"`
	Name            string `json:"name" dynamodbav:"name"`
	Role            string `json:"role" dynamodbav:"role"`
	IsVerified      bool   `json:"is_verified" dynamodbav:"is_verified"`
	IsAdminVerified bool   `json:"is_admin_verified" dynamodbav:"is_admin_verified"`
}

// Provider is an interface for a generic messaging backend, for
// instance, e-mail or SMS, that delivers OTP codes out-of-band.
type Provider interface {
	// ID returns the name of the Provider.
	ID() string

	// ChannelName returns the name of the channel the provider delivers
	// on, for example "SMS" or "E-mail".
	ChannelName() string

	// ValidateAddress validates the 'to' address the Provider is
	// supposed to send the OTP to.
	ValidateAddress(to string) error

	// Push sends a rendered message to the given address.
	Push(to, subject string, body []byte) error

	// MaxAddressLen returns the maximum allowed length of the 'to' address.
	MaxAddressLen() int

	// MaxOTPLen returns the maximum allowed length of the OTP value.
	MaxOTPLen() int

	// MaxBodyLen returns the maximum permitted length of the message body.
	MaxBodyLen() int
}

// keySanitizer substitutes characters that are not valid in store key
// segments (e-mails carry '.' and may carry other reserved characters).
var keySanitizer = strings.NewReplacer(
	".", ",",
	"#", "_",
	"$", "_",
	"[", "_",
	"]", "_",
	"/", "_",
)

// SanitizeKey normalizes an identifier into a valid store key segment.
// Volunteer challenges are filed under their sanitized e-mail.
func SanitizeKey(id string) string {
	return keySanitizer.Replace(strings.ToLower(strings.TrimSpace(id)))
}
