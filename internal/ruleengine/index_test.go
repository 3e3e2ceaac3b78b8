package ruleengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(presets []*Preset) []string {
	out := make([]string, 0, len(presets))
	for _, p := range presets {
		out = append(out, p.ID)
	}
	return out
}

func TestNewIndex_Buckets(t *testing.T) {
	t.Parallel()

	// Arrange
	cafe := point("amenity/cafe", Tags{"amenity": "cafe"})
	bakery := point("shop/bakery", Tags{"shop": "bakery"})
	shopCafe := point("shop/coffee", Tags{"shop": "coffee", "amenity": "cafe"})
	address := point("address", Tags{"addr:*": "*"})
	brand := point("brand/acme", Tags{"brand:wikidata": "Q1"})

	// Act
	idx := NewIndex([]*Preset{cafe, bakery, shopCafe, address}, []*Preset{brand})

	// Assert
	assert.Equal(t, 5, idx.Len())
	assert.True(t, idx.IsKnownKey("amenity"))
	assert.True(t, idx.IsKnownKey("shop"))
	assert.True(t, idx.IsKnownKey("address"))
	assert.False(t, idx.IsKnownKey("brand"), "known keys derive from base presets only")

	assert.Equal(t, []string{"amenity/cafe", "shop/coffee"}, ids(idx.Bucket("amenity")))
	assert.Equal(t, []string{"shop/bakery", "shop/coffee"}, ids(idx.Bucket("shop")))
	assert.Equal(t, []string{"address", "brand/acme"}, ids(idx.Bucket("")))
}

func TestTagIndex_Candidates(t *testing.T) {
	t.Parallel()

	// Arrange
	cafe := point("amenity/cafe", Tags{"amenity": "cafe"})
	bakery := point("shop/bakery", Tags{"shop": "bakery"})
	shopCafe := point("shop/coffee", Tags{"shop": "coffee", "amenity": "cafe"})
	address := point("address", Tags{"addr:*": "*"})
	idx := NewIndex([]*Preset{cafe, bakery, shopCafe, address})

	// Act
	var visited []string
	idx.Candidates(Tags{"shop": "coffee", "amenity": "cafe", "name": "Joe's"}, func(p *Preset) {
		visited = append(visited, p.ID)
	})

	// Assert: duplicates are tolerated, catch-all comes last
	assert.Equal(t, []string{"amenity/cafe", "shop/coffee", "shop/bakery", "shop/coffee", "address"}, visited)
}

func TestTagIndex_Replace(t *testing.T) {
	t.Parallel()

	// Arrange
	cafe := point("amenity/cafe", Tags{"amenity": "cafe"})
	bakery := point("shop/bakery", Tags{"shop": "bakery"})
	customOld := point("custom/kiosk", Tags{"shop": "kiosk"})
	customNew := point("custom/stall", Tags{"amenity": "marketplace"})
	customOrphan := point("custom/tag", Tags{"survey:date": "*"})

	idx := NewIndex([]*Preset{cafe, bakery}, []*Preset{customOld})
	require.Equal(t, 3, idx.Len())

	// Act
	next := idx.Replace([]*Preset{customOld}, []*Preset{customNew, customOrphan})

	// Assert: the original is untouched
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, []string{"custom/kiosk", "shop/bakery"}, ids(idx.Bucket("shop")))

	assert.Equal(t, 4, next.Len())
	assert.Equal(t, []string{"shop/bakery"}, ids(next.Bucket("shop")))
	assert.Equal(t, []string{"amenity/cafe", "custom/stall"}, ids(next.Bucket("amenity")))
	assert.Equal(t, []string{"custom/tag"}, ids(next.Bucket("")))
}

func TestTagIndex_ReplaceRemovesEmptyBuckets(t *testing.T) {
	t.Parallel()

	// Arrange
	cafe := point("amenity/cafe", Tags{"amenity": "cafe"})
	orphan := point("custom/tag", Tags{"survey:date": "*"})
	idx := NewIndex([]*Preset{cafe}, []*Preset{orphan})

	// Act
	next := idx.Replace([]*Preset{orphan}, nil)

	// Assert
	assert.Equal(t, 1, next.Len())
	assert.Empty(t, next.Bucket(""))
}

func TestTagIndex_NilLen(t *testing.T) {
	t.Parallel()

	var idx *TagIndex

	assert.Equal(t, 0, idx.Len())
}
