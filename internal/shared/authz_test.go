package shared

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type staticGate struct {
	allow bool
	err   error
}

func (g staticGate) Allow(ctx context.Context, userID int64, permission string) (bool, error) {
	return g.allow, g.err
}

func TestEnsureAllowedNilGatePermitsAll(t *testing.T) {
	assert.NoError(t, EnsureAllowed(context.Background(), nil, 7, PermJournalPost))
}

func TestEnsureAllowedDenial(t *testing.T) {
	err := EnsureAllowed(context.Background(), staticGate{allow: false}, 7, PermJournalPost)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestEnsureAllowedGrant(t *testing.T) {
	assert.NoError(t, EnsureAllowed(context.Background(), staticGate{allow: true}, 7, PermPeriodClose))
}

func TestEnsureAllowedGateError(t *testing.T) {
	boom := errors.New("gate unavailable")
	err := EnsureAllowed(context.Background(), staticGate{err: boom}, 7, PermJournalVoid)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrForbidden)
}
