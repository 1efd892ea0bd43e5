// Package codegen produces the numeric one-time codes delivered to
// verification subjects.
package codegen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// CodeLen is the fixed length of generated codes.
const CodeLen = 6

// codes are drawn from [100000, 999999] so the length is guaranteed
// without padding ambiguity.
var codeRange = big.NewInt(900000)

// Generator produces fixed-length numeric codes with an absolute
// expiry computed from a configured TTL.
type Generator struct {
	ttl time.Duration
}

// New returns a Generator whose codes expire ttl after generation.
func New(ttl time.Duration) *Generator {
	return &Generator{ttl: ttl}
}

// TTL returns the configured expiry window.
func (g *Generator) TTL() time.Duration {
	return g.ttl
}

// Generate returns a 6 digit numeric code and its absolute expiry.
func (g *Generator) Generate() (string, time.Time, error) {
	n, err := rand.Int(rand.Reader, codeRange)
	if err != nil {
		return "", time.Time{}, err
	}

	return fmt.Sprintf("%06d", n.Int64()+100000), time.Now().Add(g.ttl), nil
}
