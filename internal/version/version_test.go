package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		build    string
		revision string
		expected string
	}{
		{"dev build", "dev", "", "dev"},
		{"plain semver", "1.2.3", "", "v1.2.3"},
		{"prefixed semver", "v0.9.0", "", "v0.9.0"},
		{"short semver", "2.1", "", "v2.1.0"},
		{"prerelease", "1.0.0-rc.1", "", "v1.0.0-rc.1"},
		{"revision wins", "1.2.3", "v1.2.3-14-gdeadbee", "v1.2.3-14-gdeadbee"},
		{"blank revision ignored", "1.2.3", "  ", "v1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, format(tt.build, tt.revision))
		})
	}
}

func TestString_UsesLinkedValues(t *testing.T) {
	oldBuild, oldRev := BuildVersion, GitRevision
	t.Cleanup(func() { BuildVersion, GitRevision = oldBuild, oldRev })

	BuildVersion, GitRevision = "dev", ""
	assert.Equal(t, "dev", String())
	assert.True(t, IsDev())

	BuildVersion = "0.4.1"
	assert.Equal(t, "v0.4.1", String())
	assert.False(t, IsDev())
}
