package sqlite

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	root := t.TempDir()

	loc, err := Resolve(StaticRoot(root))
	require.NoError(t, err)

	assert.Equal(t, root, loc.Root)
	assert.Equal(t, filepath.Join(root, "application.db"), loc.Primary)
	assert.Equal(t, filepath.Join(root, "application.db-wal"), loc.WAL)
	assert.Equal(t, filepath.Join(root, "application.db-shm"), loc.SHM)
	assert.Equal(t, []string{loc.Primary, loc.WAL, loc.SHM}, loc.Files())
}

func TestResolve_CleansPath(t *testing.T) {
	root := t.TempDir()

	loc, err := Resolve(StaticRoot(root + string(filepath.Separator) + "."))
	require.NoError(t, err)
	assert.Equal(t, root, loc.Root)
}

func TestResolve_DoesNotCreateDirectories(t *testing.T) {
	root := filepath.Join(t.TempDir(), "missing")

	loc, err := Resolve(StaticRoot(root))
	require.NoError(t, err)
	assert.Equal(t, root, loc.Root)

	_, err = os.Stat(root)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestResolve_Errors(t *testing.T) {
	providerErr := errors.New("config dir unavailable")

	tests := []struct {
		name     string
		provider RootProvider
		wantErr  error
	}{
		{name: "nil provider", provider: nil},
		{name: "provider failure", provider: func() (string, error) { return "", providerErr }, wantErr: providerErr},
		{name: "empty root", provider: StaticRoot("  ")},
		{name: "relative root", provider: StaticRoot("relative/dir")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.provider)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrLocationUnavailable)

			var locErr *LocationError
			assert.ErrorAs(t, err, &locErr)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestUserConfigRoot(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)
	t.Setenv("HOME", base)

	dir, err := UserConfigRoot("com.example.readinglist")()
	require.NoError(t, err)
	assert.Equal(t, "com.example.readinglist", filepath.Base(dir))
	assert.True(t, filepath.IsAbs(dir))
}

func TestUserConfigRoot_EmptyID(t *testing.T) {
	_, err := Resolve(UserConfigRoot(""))
	assert.ErrorIs(t, err, ErrLocationUnavailable)
}
