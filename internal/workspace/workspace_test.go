package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziongh/miller/internal/config"
)

func TestRegistryAddListRemove(t *testing.T) {
	reg := NewRegistry(filepath.Join(t.TempDir(), "workspaces.json"))
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module x\n"), 0o644))

	rec, err := reg.Add(root)
	require.NoError(t, err)
	assert.Equal(t, "go", rec.Type)
	assert.Equal(t, filepath.Base(root), rec.Name)

	records, err := reg.List()
	require.NoError(t, err)
	require.Len(t, records, 1)

	got, err := reg.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Path, got.Path)

	// Lookup by path works too.
	got, err = reg.Get(root)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	require.NoError(t, reg.Remove(rec.ID))
	_, err = reg.Get(rec.ID)
	assert.Error(t, err)
}

func TestRegistryAddRejectsMissingDir(t *testing.T) {
	reg := NewRegistry(filepath.Join(t.TempDir(), "workspaces.json"))

	_, err := reg.Add(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestDetectProjectType(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, "unknown", detectProjectType(root))

	require.NoError(t, os.WriteFile(filepath.Join(root, "package.json"), []byte("{}"), 0o644))
	assert.Equal(t, "node", detectProjectType(root))

	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module x"), 0o644))
	assert.Equal(t, "mixed", detectProjectType(root))
}

func TestWorkspaceIDStable(t *testing.T) {
	assert.Equal(t, WorkspaceID("/tmp/a"), WorkspaceID("/tmp/a"))
	assert.NotEqual(t, WorkspaceID("/tmp/a"), WorkspaceID("/tmp/b"))
}

func TestEngineLifecycle(t *testing.T) {
	t.Setenv("MILLER_HOME", t.TempDir())
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"),
		[]byte("def fn():\n    pass\n"), 0o644))

	e, err := Initialize(root, config.Default())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = e.Indexer.IndexWorkspace(ctx)
	require.NoError(t, err)

	health := e.Health(ctx)
	assert.Equal(t, 1, health.Files)
	assert.True(t, health.EmbedderReady)
	assert.False(t, health.Watching)

	require.NoError(t, e.Shutdown())
}

func TestEngineLockExcludesSecondWriter(t *testing.T) {
	t.Setenv("MILLER_HOME", t.TempDir())
	root := t.TempDir()

	e1, err := Initialize(root, config.Default())
	require.NoError(t, err)
	defer func() { _ = e1.Shutdown() }()

	_, err = Initialize(root, config.Default())
	assert.Error(t, err, "second engine on the same workspace must fail to lock")
}

func TestManagerCachesEngines(t *testing.T) {
	t.Setenv("MILLER_HOME", t.TempDir())
	m := NewManager(NewRegistry(filepath.Join(t.TempDir(), "reg.json")))
	root := t.TempDir()

	e1, err := m.Engine(root)
	require.NoError(t, err)
	e2, err := m.Engine(root)
	require.NoError(t, err)
	assert.Same(t, e1, e2)

	m.ShutdownAll()
}
