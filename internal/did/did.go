// Package did derives decentralized identifiers for on-ledger entities.
//
// Every token, trade pair, pool, order, auction and proposal gets a fresh
// 32-byte DID computed as blake2b-256 over (seed ‖ caller ‖ nonce). The
// nonce is a per-module counter supplied by the caller, so two entities
// created by the same account in the same module still get distinct IDs.
package did

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/dnft/swap-engine/internal/model"
)

// Generator derives DIDs from an entropy source. The zero value is not
// usable; construct with NewGenerator.
type Generator struct {
	seed func() ([32]byte, error)
}

// NewGenerator returns a Generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{seed: randomSeed}
}

// NewGeneratorWithSeed returns a Generator with a fixed seed, for
// deterministic IDs in tests.
func NewGeneratorWithSeed(seed [32]byte) *Generator {
	return &Generator{seed: func() ([32]byte, error) { return seed, nil }}
}

func randomSeed() ([32]byte, error) {
	var s [32]byte
	if _, err := rand.Read(s[:]); err != nil {
		return s, fmt.Errorf("did: read entropy: %w", err)
	}
	return s, nil
}

// Next derives a DID for the given caller and nonce.
func (g *Generator) Next(caller model.AccountID, nonce uint64) (model.DID, error) {
	seed, err := g.seed()
	if err != nil {
		return model.DID{}, err
	}

	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)

	h, err := blake2b.New256(nil)
	if err != nil {
		return model.DID{}, fmt.Errorf("did: init hash: %w", err)
	}
	h.Write(seed[:])
	h.Write([]byte(caller))
	h.Write(n[:])

	var d model.DID
	copy(d[:], h.Sum(nil))
	return d, nil
}
