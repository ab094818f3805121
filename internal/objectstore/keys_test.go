package objectstore

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradepilot/backend/internal/errdefs"
)

func TestGenerateKey_UUIDPlusExtension(t *testing.T) {
	key, err := GenerateKey("answers.PNG")

	require.NoError(t, err)
	require.True(t, strings.HasSuffix(key, ".png"))

	_, err = uuid.Parse(strings.TrimSuffix(key, ".png"))
	assert.NoError(t, err)
}

func TestGenerateKey_CollisionResistant(t *testing.T) {
	first, err := GenerateKey("a.jpg")
	require.NoError(t, err)

	second, err := GenerateKey("a.jpg")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestGenerateKey_NoExtension(t *testing.T) {
	_, err := GenerateKey("answers")

	assert.ErrorIs(t, err, errdefs.ErrValidation)
}

func TestGenerateKey_DisallowedExtension(t *testing.T) {
	_, err := GenerateKey("malware.exe")

	assert.ErrorIs(t, err, errdefs.ErrValidation)
}
