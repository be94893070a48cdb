package metadata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMetadata() Metadata {
	return Metadata{
		Path: "finance/bank.pgp",
		Template: BaseMetadata{
			Type:        "login",
			Category:    "finance",
			Tags:        []string{"bank", "primary"},
			Description: "main checking account",
			Attachments: []string{"statement.pdf"},
			Extra:       map[string]interface{}{"url": "https://bank.example"},
		},
		Modifications: 3,
		Fingerprint:   "ABCD1234",
		CreatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		ChecksumMain:  "deadbeef",
		ChecksumMeta:  "",
	}
}

func TestSerializeParseRoundTrip(t *testing.T) {
	orig := sampleMetadata()
	data, err := Serialize(orig)
	require.NoError(t, err)

	got, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, orig.Path, got.Path)
	assert.Equal(t, orig.Template.Type, got.Template.Type)
	assert.Equal(t, orig.Template.Category, got.Template.Category)
	assert.Equal(t, orig.Template.Tags, got.Template.Tags)
	assert.Equal(t, orig.Template.Attachments, got.Template.Attachments)
	assert.Equal(t, orig.Template.Extra["url"], got.Template.Extra["url"])
	assert.Equal(t, orig.Modifications, got.Modifications)
	assert.Equal(t, orig.Fingerprint, got.Fingerprint)
	assert.True(t, orig.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, orig.ChecksumMain, got.ChecksumMain)
}

func TestMergeScalarOverlayWins(t *testing.T) {
	base := sampleMetadata()
	overlay := BaseMetadata{Category: "personal", Extra: map[string]interface{}{}}

	merged := Merge(base, overlay)

	assert.Equal(t, "personal", merged.Template.Category)
	assert.Equal(t, base.Template.Type, merged.Template.Type)
	assert.Equal(t, base.Path, merged.Path, "system fields survive a template merge")
}

func TestMergeSequenceConcatenates(t *testing.T) {
	base := sampleMetadata()
	overlay := BaseMetadata{Tags: []string{"shared"}, Extra: map[string]interface{}{}}

	merged := Merge(base, overlay)

	assert.Equal(t, []string{"bank", "primary", "shared"}, merged.Template.Tags)
}

func TestMergeExtraMappingRecurses(t *testing.T) {
	base := sampleMetadata()
	base.Template.Extra["nested"] = map[string]interface{}{"a": "1"}
	overlay := BaseMetadata{Extra: map[string]interface{}{
		"nested": map[string]interface{}{"b": "2"},
	}}

	merged := Merge(base, overlay)

	nested, ok := merged.Template.Extra["nested"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "1", nested["a"])
	assert.Equal(t, "2", nested["b"])
}

func TestGetFieldTopLevel(t *testing.T) {
	m := sampleMetadata()
	v, ok := GetField(m, "path")
	require.True(t, ok)
	assert.Equal(t, "finance/bank.pgp", v)
}

func TestGetFieldTemplateNested(t *testing.T) {
	m := sampleMetadata()
	v, ok := GetField(m, "template.category")
	require.True(t, ok)
	assert.Equal(t, "finance", v)
}

func TestGetFieldExtraNested(t *testing.T) {
	m := sampleMetadata()
	v, ok := GetField(m, "template.url")
	require.True(t, ok)
	assert.Equal(t, "https://bank.example", v)
}

func TestGetFieldMissing(t *testing.T) {
	m := sampleMetadata()
	_, ok := GetField(m, "template.nonexistent")
	assert.False(t, ok)
}

func TestChecksumMetaDigestExcludesItself(t *testing.T) {
	m := sampleMetadata()
	m.ChecksumMeta = "stale-value"

	digest, err := ChecksumMetaDigest(m)
	require.NoError(t, err)

	m.ChecksumMeta = "different-stale-value"
	digest2, err := ChecksumMetaDigest(m)
	require.NoError(t, err)

	assert.Equal(t, digest, digest2, "digest must not depend on the prior checksum_meta value")
}
