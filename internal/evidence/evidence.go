// Package evidence provides the content fingerprints and generated
// identifiers used across the ledger. Everything here is an explicit factory
// invoked at entity-construction time, so uniqueness checks and atomicity
// stay visible at the call site.
package evidence

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BatchFingerprint computes the evidence hash binding a batch's reported
// measures to a unique, tamper-evident identifier. The creation timestamp is
// part of the input so two identical submissions still fingerprint apart.
func BatchFingerprint(kgProduced, kwhUsed float64, productionDate, createdAt time.Time) string {
	data := fmt.Sprintf("%v-%v-%s-%d",
		kgProduced, kwhUsed,
		productionDate.UTC().Format(time.RFC3339),
		createdAt.UTC().UnixMilli(),
	)
	return sha256Hex([]byte(data))
}

// EventFingerprint computes the transaction hash for a credit event. It is a
// content fingerprint over the event's identity, parties, amount, and append
// timestamp; it doubles as the event's unique key.
func EventFingerprint(creditID uuid.UUID, eventType string, fromUser, toUser uuid.UUID, amount float64, at time.Time) string {
	data := fmt.Sprintf("%s-%s-%s-%s-%v-%d",
		creditID, eventType, fromUser, toUser, amount,
		at.UTC().UnixNano(),
	)
	return sha256Hex([]byte(data))
}

// NewCreditID generates a credit identifier of the form
// H2C-<base36 unix-ms>-<5 random base36 chars>, uppercased. Callers must
// still treat the value as possibly colliding and fail closed on conflict.
func NewCreditID() string {
	return prefixedID("H2C", 5)
}

// NewReceiptID generates a retirement receipt identifier
// (RET-<unix-ms>-<5 random chars>, uppercased).
func NewReceiptID() string {
	return strings.ToUpper(fmt.Sprintf("RET-%d-%s", time.Now().UnixMilli(), randBase36(5)))
}

// NewTransactionID generates a bookkeeping transaction identifier
// (TXN-<unix-ms>-<9 random chars>, uppercased).
func NewTransactionID() string {
	return strings.ToUpper(fmt.Sprintf("TXN-%d-%s", time.Now().UnixMilli(), randBase36(9)))
}

func prefixedID(prefix string, n int) string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	return strings.ToUpper(prefix + "-" + ts + "-" + randBase36(n))
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// randBase36 returns n cryptographically random base-36 characters.
func randBase36(n int) string {
	var b strings.Builder
	b.Grow(n)
	max := big.NewInt(int64(len(base36)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failure means the platform RNG is broken; there is
			// no safe fallback for identifier generation.
			panic(fmt.Sprintf("evidence: rng failure: %v", err))
		}
		b.WriteByte(base36[idx.Int64()])
	}
	return b.String()
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
