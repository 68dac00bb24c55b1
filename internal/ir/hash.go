package ir

import (
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/text/unicode/norm"
)

// DomainKey is the domain prefix for name-derived keys.
// Version suffix enables future algorithm migration.
const DomainKey = "ifthen/key/v1"

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) [sha256.Size]byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// HashKey derives a stable 64-bit key from an authored name.
//
// Names are NFC-normalized first so visually identical names authored in
// different Unicode forms map to the same key. The empty name maps to NoKey;
// no other name does.
func HashKey(name string) uint64 {
	if name == "" {
		return NoKey
	}
	sum := hashWithDomain(DomainKey, []byte(norm.NFC.String(name)))
	key := binary.BigEndian.Uint64(sum[:8])
	if key == NoKey {
		key = 1
	}
	return key
}

// StatusKeyOf hashes a status name.
func StatusKeyOf(name string) StatusKey { return StatusKey(HashKey(name)) }

// ExpressionKeyOf hashes an expression name.
func ExpressionKeyOf(name string) ExpressionKey { return ExpressionKey(HashKey(name)) }

// ChunkKeyOf hashes a chunk name.
func ChunkKeyOf(name string) ChunkKey { return ChunkKey(HashKey(name)) }
