package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "civreg/pkg/domain-errors"
)

// TestParseCitizenID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs".
func TestParseCitizenID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseCitizenID("")
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, derrors.CodeValidation))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseCitizenID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, derrors.CodeValidation))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseCitizenID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, derrors.CodeValidation))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		id, err := ParseCitizenID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, CitizenID(valid), id)
	})
}

// TestTypeDistinction verifies the compiler enforces type safety between ID
// kinds. If this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	citizenID := CitizenID(uuid.New())
	requestID := DocumentRequestID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ CitizenID = requestID        // compile error
	// var _ DocumentRequestID = citizenID // compile error

	assert.NotEqual(t, uuid.UUID(citizenID), uuid.UUID(requestID))
}

func TestIDHelpers(t *testing.T) {
	assert.True(t, CitizenID{}.IsNil())
	assert.False(t, NewCitizenID().IsNil())
	assert.False(t, NewDocumentRequestID().IsNil())

	id := NewCitizenID()
	parsed, err := ParseCitizenID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}
