package directorysource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/conveyor/internal/model"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestListWalksDirectoryTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "alpha")
	writeFile(t, root, "nested/b.txt", "beta")
	writeFile(t, root, "nested/deep/c.md", "gamma")

	source, err := New(map[string]any{"path": root}, plugin.Dependencies{})
	require.NoError(t, err)

	items, err := source.List(context.Background())
	require.NoError(t, err)

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.CanonicalID)
	}
	require.ElementsMatch(t, []string{"a.txt", "nested/b.txt", "nested/deep/c.md"}, ids)
}

func TestListAppliesPattern(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "alpha")
	writeFile(t, root, "b.md", "beta")
	writeFile(t, root, "nested/c.txt", "gamma")

	source, err := New(map[string]any{"path": root, "pattern": "*.txt"}, plugin.Dependencies{})
	require.NoError(t, err)

	items, err := source.List(context.Background())
	require.NoError(t, err)

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.CanonicalID)
	}
	require.ElementsMatch(t, []string{"a.txt", "nested/c.txt"}, ids)
}

func TestListCanonicalIDIsStableAcrossRuns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "nested/doc.txt", "content")

	source, err := New(map[string]any{"path": root}, plugin.Dependencies{})
	require.NoError(t, err)

	first, err := source.List(context.Background())
	require.NoError(t, err)
	second, err := source.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)

	var item model.ContentItem = first[0]
	require.Equal(t, "nested/doc.txt", item.CanonicalID)
	require.Equal(t, "doc.txt", item.Name)
	require.FileExists(t, item.URL)
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New(map[string]any{}, plugin.Dependencies{})
	require.Error(t, err)
}
