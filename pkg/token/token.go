// Package token generates and validates the short, user-visible subscription
// tokens attached to a labour aggregate. Tokens are not cryptographic
// authenticators — see spec.md §9 — so a constant-time comparison guards
// against timing side channels but the salt is not a hard security boundary.
package token

import (
	"crypto/subtle"
	"fmt"
	"hash/fnv"
)

// Generator produces and validates subscription tokens for a (mother, labour)
// pair. A single Generator is built once per deployment from the derived
// salt (pkg/config) and shared across aggregates.
type Generator interface {
	Generate(motherID, labourID string) string
	Validate(motherID, labourID, candidate string) bool
}

// splitMix64Generator implements Generator using an FNV-1a content hash
// finalized with the SplitMix64 mixing function, matching the shape of the
// original worker's SplitMix64TokenGenerator (hash_to_u64 + finalizer + mod
// 1e5), ported from Rust's DefaultHasher to Go's hash/fnv since no bit-exact
// hash function is mandated — only determinism and the finalizer step are.
type splitMix64Generator struct {
	salt string
}

// NewGenerator creates a token Generator using the given deployment salt.
// The salt should come from pkg/config's derived, rotatable secret rather
// than a literal environment value.
func NewGenerator(salt string) Generator {
	return &splitMix64Generator{salt: salt}
}

func hashToUint64(input string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(input))
	return h.Sum64()
}

// splitMix64Finalizer is the well-known SplitMix64 output mixing step.
func splitMix64Finalizer(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

func (g *splitMix64Generator) generate(motherID, labourID string) string {
	combined := motherID + labourID + g.salt
	hashed := hashToUint64(combined)
	finalized := splitMix64Finalizer(hashed)
	return fmt.Sprintf("%05d", finalized%100000)
}

func (g *splitMix64Generator) Generate(motherID, labourID string) string {
	return g.generate(motherID, labourID)
}

// Validate recomputes the expected token and compares it in constant time,
// per spec.md §6.4.
func (g *splitMix64Generator) Validate(motherID, labourID, candidate string) bool {
	expected := g.generate(motherID, labourID)
	if len(expected) != len(candidate) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(candidate)) == 1
}
