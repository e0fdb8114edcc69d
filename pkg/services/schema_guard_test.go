package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilityDescriptor(t *testing.T) {
	desc := StaticCapabilities(
		map[string]bool{
			"mortgage_statements":   true,
			"occupancy_snapshots":   false,
			"extraction_confidence": false,
		},
		map[string]string{"extraction_confidence": "1.0"},
	)

	assert.True(t, desc.Has("mortgage_statements"))
	assert.False(t, desc.Has("occupancy_snapshots"))
	assert.False(t, desc.Has("never_declared"))

	def, ok := desc.DefaultFor("extraction_confidence")
	assert.True(t, ok)
	assert.Equal(t, "1.0", def)

	_, ok = desc.DefaultFor("mortgage_statements")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"mortgage_statements", "occupancy_snapshots", "extraction_confidence"}, desc.Features())
}

func TestCapabilityDescriptorEmpty(t *testing.T) {
	desc := StaticCapabilities(nil, nil)
	assert.False(t, desc.Has("anything"))
	assert.Empty(t, desc.Features())
}
