package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestamp_RFC3339(t *testing.T) {
	res := Timestamp("2024-06-01T10:30:00+02:00")
	require.True(t, res.Valid, res.Error)
	assert.Equal(t, "2024-06-01T08:30:00Z", res.Normalized)
	assert.Empty(t, res.Error)
}

func TestTimestamp_DateOnly(t *testing.T) {
	res := Timestamp("2024-06-01")
	require.True(t, res.Valid, res.Error)
	assert.Equal(t, "2024-06-01T00:00:00Z", res.Normalized)
	assert.NotEmpty(t, res.Warning)
}

func TestTimestamp_Invalid(t *testing.T) {
	for _, s := range []string{"", "yesterday", "2024-13-01T00:00:00Z", "01/02/2024"} {
		res := Timestamp(s)
		assert.False(t, res.Valid, "input %q", s)
		assert.NotEmpty(t, res.Error, "input %q", s)
		assert.Empty(t, res.Normalized, "input %q", s)
	}
}

func TestDate_CalendarValidity(t *testing.T) {
	require.NoError(t, Date("2024-02-29")) // leap year
	require.NoError(t, Date("2024-04-30"))

	assert.Error(t, Date("2023-02-29")) // not a leap year
	assert.Error(t, Date("2024-04-31"))
	assert.Error(t, Date("2024-02-31"))
	assert.Error(t, Date("2024-00-10"))
	assert.Error(t, Date("24-04-01"))
	assert.Error(t, Date("2024-4-1"))
}

func TestMetadata_NilAndEmpty(t *testing.T) {
	assert.NoError(t, Metadata(nil))
	assert.NoError(t, Metadata(map[string]interface{}{}))
}

func TestMetadata_ValidObject(t *testing.T) {
	md := map[string]interface{}{
		"memoryType": "belief",
		"importance": "high",
		"source":     "user",
		"kind":       "derived",
		"stability":  "stable",
		"topic":      "anything goes for free-form keys",
		"tags":       []interface{}{"a", "b"},
		"derivedFromIds": []interface{}{"mem_1"},
		"date":       "2024-06-01",
		"emotion": map[string]interface{}{
			"label":     "curiosity",
			"intensity": 0.7,
		},
		"dynamics": map[string]interface{}{
			"initialPriority": 0.5,
			"currentPriority": 0.4,
			"accessCount":     3,
			"createdAt":       "2024-01-01T00:00:00Z",
			"stability":       "canonical",
		},
		"relationships": []interface{}{
			map[string]interface{}{"targetId": "mem_2", "type": "supports", "weight": 0.9},
		},
	}
	assert.NoError(t, Metadata(md))
}

func TestMetadata_RejectsBadEnums(t *testing.T) {
	cases := []map[string]interface{}{
		{"memoryType": "procedural"},
		{"memory_type": "procedural"},
		{"importance": "critical"},
		{"source": "api"},
		{"kind": "synthetic"},
		{"stability": "frozen"},
		{"importance": 2}, // must be the string form in metadata
	}
	for i, md := range cases {
		assert.Error(t, Metadata(md), "case %d: %v", i, md)
	}
}

func TestMetadata_RejectsBadDynamics(t *testing.T) {
	cases := []map[string]interface{}{
		{"dynamics": "high"},
		{"dynamics": map[string]interface{}{"initialPriority": 1.5}},
		{"dynamics": map[string]interface{}{"currentPriority": -0.1}},
		{"dynamics": map[string]interface{}{"currentPriority": "max"}},
		{"dynamics": map[string]interface{}{"accessCount": -1}},
		{"dynamics": map[string]interface{}{"accessCount": 1.5}},
		{"dynamics": map[string]interface{}{"createdAt": "not a date"}},
		{"dynamics": map[string]interface{}{"lastAccessedAt": 12345}},
	}
	for i, md := range cases {
		assert.Error(t, Metadata(md), "case %d: %v", i, md)
	}
}

func TestMetadata_RejectsBadRelationships(t *testing.T) {
	cases := []map[string]interface{}{
		{"relationships": "none"},
		{"relationships": []interface{}{"mem_2"}},
		{"relationships": []interface{}{map[string]interface{}{"type": "supports"}}},
		{"relationships": []interface{}{map[string]interface{}{"targetId": "mem_2", "type": "related_to"}}},
		{"relationships": []interface{}{map[string]interface{}{"targetId": "mem_2"}}},
		{"relationships": []interface{}{map[string]interface{}{"targetId": "mem_2", "type": "supports", "weight": 1.2}}},
	}
	for i, md := range cases {
		assert.Error(t, Metadata(md), "case %d: %v", i, md)
	}
}

func TestMetadata_RejectsBadEmotion(t *testing.T) {
	cases := []map[string]interface{}{
		{"emotion": map[string]interface{}{"label": 42}},
		{"emotion": map[string]interface{}{"intensity": 1.1}},
		{"emotion": map[string]interface{}{"intensity": "strong"}},
	}
	for i, md := range cases {
		assert.Error(t, Metadata(md), "case %d: %v", i, md)
	}
}

func TestMetadata_RejectsBadLists(t *testing.T) {
	cases := []map[string]interface{}{
		{"tags": "a,b"},
		{"tags": []interface{}{"a", 2}},
		{"relatedIds": map[string]interface{}{}},
		{"derivedFromIds": []interface{}{true}},
	}
	for i, md := range cases {
		assert.Error(t, Metadata(md), "case %d: %v", i, md)
	}
}

func TestMetadata_CollectsAllIssues(t *testing.T) {
	md := map[string]interface{}{
		"memoryType": "bogus",
		"importance": "critical",
		"date":       "2024-02-31",
	}
	err := Metadata(md)
	require.Error(t, err)
	var me *MetadataError
	require.ErrorAs(t, err, &me)
	assert.Len(t, me.Issues, 3)
}

func TestStringList(t *testing.T) {
	got, err := StringList([]interface{}{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	got, err = StringList([]string{"x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got)

	_, err = StringList("a")
	assert.Error(t, err)
}
