package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chapsvision-dev/remote-backup/internal/model"
)

func TestStore_SelectAndClear(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nested", "state.json"))

	_, err := s.Folder()
	require.ErrorIs(t, err, ErrNoFolder)

	f := model.NewFolder("F1", "MoneyWallet").WithOrigin("gdrive", "me@example.com")
	require.NoError(t, s.SetFolder(f))

	got, err := s.Folder()
	require.NoError(t, err)
	assert.Equal(t, f, got)

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())
	_, err = s.Folder()
	assert.ErrorIs(t, err, ErrNoFolder)
}

func TestStore_RejectsFiles(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "state.json"))
	assert.Error(t, s.SetFolder(model.NewFile("x", "x.zip", 1)))
}

func TestStore_CorruptSelection(t *testing.T) {
	p := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"folder":"{\"name\":\"x\"}"}`), 0o600))

	_, err := NewStore(p).Folder()
	assert.ErrorIs(t, err, model.ErrDecode)
}
