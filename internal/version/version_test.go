package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInfoDefaults(t *testing.T) {
	v, c, d := Info()
	require.NotEmpty(t, v)
	require.NotEmpty(t, c)
	require.NotEmpty(t, d)
	require.Equal(t, v, Version())
}

func TestStringContainsBuildInfo(t *testing.T) {
	s := String()
	require.Contains(t, s, "flashsale")
	require.Contains(t, s, "version="+version)
	require.Contains(t, s, "commit="+commit)
	require.Contains(t, s, "date="+date)
}

func TestFieldsOverridden(t *testing.T) {
	prevV, prevC, prevD := version, commit, date
	t.Cleanup(func() { version, commit, date = prevV, prevC, prevD })

	version, commit, date = "1.2.3", "abc123", "2026-03-01"

	fields := Fields()
	require.Equal(t, "1.2.3", fields["version"])
	require.Equal(t, "abc123", fields["commit"])
	require.Equal(t, "2026-03-01", fields["built"])
	require.Equal(t, "flashsale version=1.2.3 commit=abc123 date=2026-03-01", String())
}
