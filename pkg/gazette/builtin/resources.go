package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cognicore/gazette/pkg/gazette/gazetteer"
	"github.com/cognicore/gazette/pkg/gazette/internalerr"
)

// ResourceFinder locates the resource bundle of a builtin gazetteer entity.
type ResourceFinder interface {
	FindGazetteerEntityDataPath(language, entity string) (string, error)
}

// Finder looks for resource bundles in the subdirectories of Root. Each
// bundle carries a metadata.json naming its entity, language and data
// directory.
type Finder struct {
	Root string
}

type resourceMetadata struct {
	EntityName    string `json:"entity_name"`
	Language      string `json:"language"`
	DataDirectory string `json:"data_directory"`
}

// FindGazetteerEntityDataPath returns the data directory of the bundle
// matching (language, entity), or a *internalerr.ResourceNotFoundError.
func (f Finder) FindGazetteerEntityDataPath(language, entity string) (string, error) {
	notFound := &internalerr.ResourceNotFoundError{Language: language, Entity: entity}

	dirs, err := os.ReadDir(f.Root)
	if err != nil {
		return "", notFound
	}
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		dir := filepath.Join(f.Root, d.Name())
		data, err := os.ReadFile(filepath.Join(dir, metadataFileName))
		if err != nil {
			continue
		}
		var meta resourceMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		if meta.EntityName == entity && strings.EqualFold(meta.Language, language) {
			return filepath.Join(dir, meta.DataDirectory), nil
		}
	}
	return "", notFound
}

// InstallResource writes a resource bundle for (language, entity) under
// root from a gazetteer index covering that entity, and returns the bundle
// directory.
func InstallResource(ctx context.Context, root, language, entity string, idx *gazetteer.Index) (string, error) {
	configs := idx.Configs()
	cfg, ok := configs[entity]
	if !ok {
		return "", fmt.Errorf("%w: index does not cover entity %q", internalerr.ErrInvalidInput, entity)
	}
	single, err := gazetteer.Build(map[string]gazetteer.EntityConfig{entity: cfg})
	if err != nil {
		return "", err
	}

	name := strings.ToLower(language) + "_" + strings.NewReplacer("/", "_", " ", "_").Replace(strings.ToLower(entity))
	dir := filepath.Join(root, name)
	if err := os.RemoveAll(dir); err != nil {
		return "", err
	}
	const dataDir = "data"
	if err := gazetteer.Save(ctx, filepath.Join(dir, dataDir), single); err != nil {
		return "", fmt.Errorf("write resource data: %w", err)
	}
	meta := resourceMetadata{EntityName: entity, Language: strings.ToLower(language), DataDirectory: dataDir}
	if err := writeJSON(filepath.Join(dir, metadataFileName), meta); err != nil {
		return "", err
	}
	return dir, nil
}

// copyDir copies the regular files and directories of src into dst.
func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", internalerr.ErrSerialization, path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", internalerr.ErrSerialization, path, err)
	}
	return nil
}
