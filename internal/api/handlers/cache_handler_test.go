package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvalidator struct {
	calls int
	err   error
}

func (f *fakeInvalidator) InvalidateExtractions(ctx context.Context) error {
	f.calls++
	return f.err
}

func TestInvalidateExtractions(t *testing.T) {
	invalidator := &fakeInvalidator{}
	app := fiber.New()
	app.Delete("/api/v1/cache/extractions", NewCacheHandler(invalidator).InvalidateExtractions)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/cache/extractions", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, invalidator.calls)
}

func TestInvalidateExtractions_CacheError(t *testing.T) {
	invalidator := &fakeInvalidator{err: assert.AnError}
	app := fiber.New()
	app.Delete("/api/v1/cache/extractions", NewCacheHandler(invalidator).InvalidateExtractions)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/cache/extractions", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
