package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Both implementations must behave the same for the operations the report
// writer relies on.
func TestFileSystems(t *testing.T) {
	impls := map[string]func(t *testing.T) (FileSystem, string){
		"os": func(t *testing.T) (FileSystem, string) {
			return OSFileSystem{}, t.TempDir()
		},
		"memory": func(t *testing.T) (FileSystem, string) {
			return NewMemoryFileSystem(), "/out"
		},
	}
	for name, mk := range impls {
		t.Run(name, func(t *testing.T) {
			fsys, root := mk(t)
			dir := filepath.Join(root, "run")

			require.NoError(t, fsys.MkdirAll(dir, 0o755))
			assert.True(t, fsys.Exists(dir))

			tmp := filepath.Join(dir, ".summary.json.tmp")
			final := filepath.Join(dir, "summary.json")
			require.NoError(t, fsys.WriteFile(tmp, []byte(`{"ok":true}`), 0o644))
			require.NoError(t, fsys.Rename(tmp, final))

			assert.False(t, fsys.Exists(tmp))
			data, err := fsys.ReadFile(final)
			require.NoError(t, err)
			assert.Equal(t, `{"ok":true}`, string(data))

			require.NoError(t, fsys.Remove(final))
			_, err = fsys.ReadFile(final)
			assert.True(t, errors.Is(err, fs.ErrNotExist))

			err = fsys.Rename(filepath.Join(dir, "missing"), final)
			assert.True(t, errors.Is(err, fs.ErrNotExist))
		})
	}
}

func TestMemoryFileSystem_FailWrites(t *testing.T) {
	m := NewMemoryFileSystem()
	boom := errors.New("disk full")
	m.FailWrites("/out/a.png", boom)

	err := m.WriteFile("/out/a.png", []byte("x"), 0o644)
	assert.True(t, errors.Is(err, boom))

	require.NoError(t, m.WriteFile("/out/.a.png.tmp", []byte("x"), 0o644))
	err = m.Rename("/out/.a.png.tmp", "/out/a.png")
	assert.True(t, errors.Is(err, boom))
	assert.True(t, m.Exists("/out/.a.png.tmp"))
}

func TestMemoryFileSystem_Files(t *testing.T) {
	m := NewMemoryFileSystem()
	require.NoError(t, m.WriteFile("/out/b.csv", nil, 0o644))
	require.NoError(t, m.WriteFile("/out/a.csv", nil, 0o644))
	require.NoError(t, m.WriteFile("/other/c.csv", nil, 0o644))

	assert.Equal(t, []string{"/out/a.csv", "/out/b.csv"}, m.Files("/out"))
}
