package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func withBuildInfo(t *testing.T, v, c, d string) {
	t.Helper()
	prevV, prevC, prevD := version, commit, date
	version, commit, date = v, c, d
	t.Cleanup(func() { version, commit, date = prevV, prevC, prevD })
}

func TestInfo_Defaults(t *testing.T) {
	v, c, d := Info()
	assert.Equal(t, "dev", v)
	assert.Equal(t, "unknown", c)
	assert.Equal(t, "unknown", d)
	assert.Equal(t, "positsync/dev", UserAgent())
}

func TestInfo_LdflagsOverride(t *testing.T) {
	withBuildInfo(t, "1.4.0", "3f2a9c1", "2026-10-01T08:00:00Z")

	v, c, d := Info()
	assert.Equal(t, "1.4.0", v)
	assert.Equal(t, "3f2a9c1", c)
	assert.Equal(t, "2026-10-01T08:00:00Z", d)
	assert.Equal(t, "positsync version=1.4.0 commit=3f2a9c1 date=2026-10-01T08:00:00Z", String())
	assert.Equal(t, "positsync/1.4.0 (3f2a9c1)", UserAgent())
}

func TestUserAgent_EmptyCommit(t *testing.T) {
	withBuildInfo(t, "1.4.0", "", "unknown")

	assert.Equal(t, "positsync/1.4.0", UserAgent())
}
