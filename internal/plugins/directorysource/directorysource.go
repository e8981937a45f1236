// Package directorysource provides a data source plugin that lists the files
// of a local directory as content items. The canonical id of each item is its
// path relative to the configured root, so repeated runs over the same
// directory address the same content.
package directorysource

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/alexisbeaulieu97/conveyor/internal/model"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
)

func init() {
	_ = plugin.RegisterDataSource("directory", New)
}

type directorySource struct {
	root    string
	pattern string
}

// New builds the plugin from data source parameters: "path" (required) is the
// directory root, "pattern" (optional) a glob matched against file names.
func New(params map[string]any, _ plugin.Dependencies) (plugin.DataSourcePlugin, error) {
	root, _ := params["path"].(string)
	if root == "" {
		return nil, fmt.Errorf("the directory data source requires a path parameter")
	}

	pattern, _ := params["pattern"].(string)
	if pattern != "" {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
	}

	return &directorySource{root: root, pattern: pattern}, nil
}

func (s *directorySource) Name() string { return "directory" }

func (s *directorySource) List(ctx context.Context) ([]model.ContentItem, error) {
	var items []model.ContentItem

	err := filepath.WalkDir(s.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if s.pattern != "" {
			matched, err := filepath.Match(s.pattern, entry.Name())
			if err != nil || !matched {
				return err
			}
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}

		items = append(items, model.ContentItem{
			CanonicalID: filepath.ToSlash(rel),
			Name:        entry.Name(),
			URL:         path,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing directory %s: %w", s.root, err)
	}

	return items, nil
}
