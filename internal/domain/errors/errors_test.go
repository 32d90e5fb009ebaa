package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassificationIsTotal(t *testing.T) {
	permanent := []Kind{
		KindInvalidApplicationID,
		KindApplicationNotFound,
		KindValidation,
		KindStateTransition,
		KindUnsupportedCountry,
		KindIdempotencyHit,
		KindActiveDuplicate,
	}
	transient := []Kind{
		KindDatabaseUnavailable,
		KindProviderUnavailable,
		KindNetworkTimeout,
		KindConnection,
		KindRecoverable,
	}

	for _, kind := range permanent {
		err := New(kind, "boom")
		assert.False(t, IsTransient(err), "%s must be permanent", kind)
		assert.True(t, IsPermanent(err), "%s must be permanent", kind)
	}
	for _, kind := range transient {
		err := New(kind, "boom")
		assert.True(t, IsTransient(err), "%s must be transient", kind)
		assert.False(t, IsPermanent(err), "%s must be transient", kind)
	}
}

func TestUnknownErrorsDefaultToTransient(t *testing.T) {
	assert.True(t, IsTransient(errors.New("something else")))
	assert.Equal(t, KindUnknown, KindOf(errors.New("something else")))
}

func TestKindSurvivesWrapping(t *testing.T) {
	cause := ProviderUnavailableError("cirbe", errors.New("connection refused"))
	wrapped := fmt.Errorf("task failed: %w", cause)

	assert.Equal(t, KindProviderUnavailable, KindOf(wrapped))
	assert.True(t, IsTransient(wrapped))
}

func TestConflictHelpers(t *testing.T) {
	idem := IdempotencyHitError("k1")
	assert.True(t, IsIdempotencyHit(idem))
	assert.True(t, IsConflict(idem))
	assert.False(t, IsActiveDuplicate(idem))

	dup := ActiveDuplicateError("ES")
	assert.True(t, IsActiveDuplicate(dup))
	assert.True(t, IsConflict(dup))
	assert.False(t, IsIdempotencyHit(dup))
}

func TestStateTransitionError(t *testing.T) {
	err := StateTransitionError("APPROVED", "VALIDATING")
	assert.True(t, IsStateTransition(err))
	assert.False(t, IsTransient(err))
	assert.Contains(t, err.Error(), "APPROVED")
	assert.Contains(t, err.Error(), "VALIDATING")
	assert.Equal(t, "APPROVED", err.Details["from"])
}

func TestNotFoundError(t *testing.T) {
	err := NotFoundError("application")
	assert.True(t, IsNotFound(err))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, IsTransient(err))
}

func TestValidationErrorCarriesField(t *testing.T) {
	err := ValidationError("currency", "currency must be EUR for country ES")
	assert.True(t, IsValidation(err))
	assert.Equal(t, "currency", err.Details["field"])
}
