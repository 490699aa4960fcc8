package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPagingParamsDefaults(t *testing.T) {
	limit, before, err := pagingParams("", "", 50, 200)
	require.NoError(t, err)
	assert.Equal(t, 50, limit)
	assert.Equal(t, uint(0), before)
}

func TestPagingParamsExplicit(t *testing.T) {
	limit, before, err := pagingParams("25", "1000", 50, 200)
	require.NoError(t, err)
	assert.Equal(t, 25, limit)
	assert.Equal(t, uint(1000), before)
}

func TestPagingParamsClampedToMax(t *testing.T) {
	limit, _, err := pagingParams("9999", "", 50, 200)
	require.NoError(t, err)
	assert.Equal(t, 200, limit)
}

func TestPagingParamsRejectsGarbage(t *testing.T) {
	_, _, err := pagingParams("abc", "", 50, 200)
	assert.Error(t, err)

	_, _, err = pagingParams("", "xyz", 50, 200)
	assert.Error(t, err)

	_, _, err = pagingParams("-5", "", 50, 200)
	assert.Error(t, err)

	_, _, err = pagingParams("0", "", 50, 200)
	assert.Error(t, err)
}
