package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommit(t *testing.T) {
	t.Run("moves staged file onto destination", func(t *testing.T) {
		staged := filepath.Join(t.TempDir(), "output.mp4")
		dst := filepath.Join(t.TempDir(), "out.mp4")
		require.NoError(t, os.WriteFile(staged, []byte("media"), 0644))
		userFile(t, dst)

		require.NoError(t, commit(staged, dst))

		got, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "media", string(got))
		assert.NoFileExists(t, staged)
	})

	t.Run("missing staged file leaves destination alone", func(t *testing.T) {
		dst := filepath.Join(t.TempDir(), "out.mp4")
		userFile(t, dst)

		err := commit(filepath.Join(t.TempDir(), "output.mp4"), dst)
		require.Error(t, err)
		assertUserFile(t, dst)
	})

	t.Run("destination that cannot be replaced", func(t *testing.T) {
		staged := filepath.Join(t.TempDir(), "output.mp4")
		require.NoError(t, os.WriteFile(staged, []byte("media"), 0644))

		parent := t.TempDir()
		dst := filepath.Join(parent, "out.mp4")
		require.NoError(t, os.Mkdir(dst, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dst, "keep"), []byte("x"), 0600))

		require.Error(t, commit(staged, dst))

		// no temporary copy is left next to the destination
		entries, err := os.ReadDir(parent)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "out.mp4", entries[0].Name())
		assert.FileExists(t, staged)
	})
}
