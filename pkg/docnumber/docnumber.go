// Package docnumber issues human-readable document numbers of the form
// PREFIX-YYYYMMDD-NNNNN.
package docnumber

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
)

const (
	PrefixOrder   = "ORD"
	PrefixInvoice = "INV"

	// MaxAttempts bounds how many candidates Allocate draws before giving up.
	MaxAttempts = 5

	sequenceSpace = 99999
)

var (
	mu     sync.Mutex
	source = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Generate returns PREFIX-YYYYMMDD-NNNNN with NNNNN drawn from 0..99998.
func Generate(prefix string, now time.Time) string {
	mu.Lock()
	n := source.Intn(sequenceSpace)
	mu.Unlock()
	return fmt.Sprintf("%s-%s-%05d", prefix, now.UTC().Format("20060102"), n)
}

// ExistsFunc reports whether a number is already taken.
type ExistsFunc func(ctx context.Context, number string) (bool, error)

// Allocate draws candidates until exists reports a free one. A concurrent
// writer can still claim the same number before insert; the unique index
// catches that and the caller's retry draws again.
func Allocate(ctx context.Context, prefix string, now time.Time, exists ExistsFunc) (string, error) {
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		candidate := Generate(prefix, now)
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check document number")
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique document number").
		WithDetails(map[string]any{"prefix": prefix, "attempts": MaxAttempts})
}
