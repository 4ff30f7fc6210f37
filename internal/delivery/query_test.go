package delivery

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "givetrack/internal/errors"
)

func TestQueryInt(t *testing.T) {
	r := httptest.NewRequest("GET", "/?page=3&limit=abc", nil)

	v, err := QueryInt(r, "page")
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	v, err = QueryInt(r, "missing")
	require.NoError(t, err)
	assert.Zero(t, v)

	_, err = QueryInt(r, "limit")
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestQueryTime(t *testing.T) {
	r := httptest.NewRequest("GET", "/?startDate=2026-03-01&endDate=2026-03-05T10:00:00Z&bad=yesterday", nil)

	from, err := QueryTime(r, "startDate")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), from)

	to, err := QueryTime(r, "endDate")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC), to)

	_, err = QueryTime(r, "bad")
	require.ErrorIs(t, err, errs.ErrValidation)

	zero, err := QueryTime(r, "none")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
}
