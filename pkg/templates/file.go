package templates

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
)

// TemplateSuffix is the file name suffix identifying a masking template.
const TemplateSuffix = "_mask.sql"

// FileStore reads templates laid out as <schema>/<table>_mask.sql.
// It works over any fs.FS, so an embedded tree can replace the directory.
type FileStore struct {
	fsys fs.FS
}

// NewFileStore creates a FileStore over fsys.
func NewFileStore(fsys fs.FS) *FileStore {
	return &FileStore{fsys: fsys}
}

// NewDirStore creates a FileStore rooted at a directory on disk.
func NewDirStore(root string) *FileStore {
	return NewFileStore(os.DirFS(root))
}

// Tables lists the templates in the schema directory. Files without the
// template suffix and sub-directories are ignored.
func (s *FileStore) Tables(_ context.Context, schema string) ([]string, error) {
	if !ValidName(schema) {
		return nil, fmt.Errorf("%w: %q", ErrSchemaNotFound, schema)
	}

	info, err := fs.Stat(s.fsys, schema)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, schema)
	}
	if err != nil {
		return nil, fmt.Errorf("reading schema directory %s: %w", schema, err)
	}

	entries, err := fs.ReadDir(s.fsys, schema)
	if err != nil {
		return nil, fmt.Errorf("reading schema directory %s: %w", schema, err)
	}

	tables := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		table, ok := strings.CutSuffix(name, TemplateSuffix)
		if !ok || table == "" {
			continue
		}
		tables = append(tables, table)
	}
	return tables, nil
}

// Template reads <schema>/<table>_mask.sql.
func (s *FileStore) Template(_ context.Context, schema, table string) (string, error) {
	if !ValidName(schema) || !ValidName(table) {
		return "", fmt.Errorf("invalid template name %q.%q", schema, table)
	}

	data, err := fs.ReadFile(s.fsys, path.Join(schema, table+TemplateSuffix))
	if err != nil {
		return "", fmt.Errorf("reading template %s.%s: %w", schema, table, err)
	}
	return string(data), nil
}

// Verify interface compliance.
var _ Store = (*FileStore)(nil)

// Schemas lists the schema directories at the root of the store.
func (s *FileStore) Schemas(_ context.Context) ([]string, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading template root: %w", err)
	}

	var schemas []string
	for _, e := range entries {
		if e.IsDir() && ValidName(e.Name()) {
			schemas = append(schemas, e.Name())
		}
	}
	return schemas, nil
}
