package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchOptions_Normalize(t *testing.T) {
	var o SearchOptions
	o.Normalize()
	assert.Equal(t, DefaultSearchLimit, o.Limit)

	o = SearchOptions{Limit: 5000}
	o.Normalize()
	assert.Equal(t, MaxSearchLimit, o.Limit)

	o = SearchOptions{Limit: 25}
	o.Normalize()
	assert.Equal(t, 25, o.Limit)
}

func TestRelatedOptions_Normalize(t *testing.T) {
	var o RelatedOptions
	o.Normalize()
	assert.Equal(t, 1, o.MaxDepth)
	assert.Equal(t, DirectionForward, o.Direction)
	assert.Equal(t, DefaultRelatedLimit, o.Limit)

	o = RelatedOptions{MaxDepth: 99, Direction: "sideways"}
	o.Normalize()
	assert.Equal(t, MaxGraphDepth, o.MaxDepth)
	assert.Equal(t, DirectionForward, o.Direction)

	o = RelatedOptions{MaxDepth: 3, Direction: DirectionBoth, Limit: 7}
	o.Normalize()
	assert.Equal(t, 3, o.MaxDepth)
	assert.Equal(t, DirectionBoth, o.Direction)
	assert.Equal(t, 7, o.Limit)
}
