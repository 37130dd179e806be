package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dnswlt/dpmap/internal/gitclient"
	"github.com/dnswlt/dpmap/internal/record"
	"github.com/google/renameio"
	"gopkg.in/yaml.v3"
)

const (
	YAMLIndent = 2
	JSONIndent = 2
)

var (
	ErrReadOnly  = errors.New("store is read-only")
	ErrNoSuchRef = errors.New("no such ref")
)

// Source is the abstraction over different types of storage layers,
// in particular local disk (non-versioned) and a Git repo (read-only).
type Source interface {
	// Refresh updates the internal state of the source (e.g., via git fetch).
	// For a disk store, this is a no-op.
	Refresh(ctx context.Context) error
	// Store returns a handle to a store at the given ref.
	// For non-versioned disk-based stores, ref must be "".
	Store(ref string) (Store, error)
}

// Store is a minimal abstraction to list, read, and write files.
// It is the common interface for disk-based and git-repo-based stores.
type Store interface {
	// ListFiles lists all files in dir (recursively).
	// The resulting paths are relative to the store's root directory,
	// so they can be passed to ReadFile and WriteFile unmodified.
	ListFiles(dir string) ([]string, error)
	// ReadFile reads the contents of path from the store.
	// path should be a relative path (e.g., "datasets/gdp.json").
	ReadFile(path string) ([]byte, error)
	// WriteFile writes the given contents to path in the store,
	// creating parent directories as needed.
	// Stores that do not support writing return ErrReadOnly.
	WriteFile(path string, contents []byte) error
}

// DiskStore is an implementation of Source and Store that reads files from the local file system.
type DiskStore struct {
	rootDir string
}

var _ Source = (*DiskStore)(nil)
var _ Store = (*DiskStore)(nil)

func NewDiskStore(rootDir string) *DiskStore {
	return &DiskStore{
		rootDir: rootDir,
	}
}

func (d *DiskStore) Refresh(context.Context) error {
	return nil
}

func (d *DiskStore) Store(ref string) (Store, error) {
	if ref != "" {
		return nil, fmt.Errorf("invalid ref %q: %w", ref, ErrNoSuchRef)
	}
	return d, nil
}

func (d *DiskStore) ListFiles(dir string) ([]string, error) {
	if _, err := resolveRelPath(d.rootDir, dir); err != nil {
		return nil, err
	}
	return listFilesRecursively(d.rootDir, dir)
}

func resolveRelPath(root, subpath string) (string, error) {
	fullPath := filepath.Join(root, subpath)

	rel, err := filepath.Rel(root, fullPath)
	if err != nil {
		return "", fmt.Errorf("not a relative path: %v", err) // e.g. paths on different volumes
	}
	// A relative path escaping the root starts with ".."
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes root directory", subpath)
	}
	return fullPath, nil
}

func (d *DiskStore) ReadFile(path string) ([]byte, error) {
	fullPath, err := resolveRelPath(d.rootDir, path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(fullPath)
}

// WriteFile replaces path atomically, so readers never observe
// a partially written record.
func (d *DiskStore) WriteFile(path string, contents []byte) error {
	fullPath, err := resolveRelPath(d.rootDir, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("cannot create directory for %s: %w", path, err)
	}
	return renameio.WriteFile(fullPath, contents, 0644)
}

// GitSource is an implementation of Source that reads from a remote Git repository.
type GitSource struct {
	client     *gitclient.Client
	defaultRef string   // ref to use if the empty ref ("") is requested
	refs       []string // cached list of available references
}

// gitStore is a "view" over a single revision in a GitSource.
type gitStore struct {
	client *gitclient.Client
	ref    string
}

var _ Source = (*GitSource)(nil)
var _ Store = (*gitStore)(nil)

// NewGitSource returns a source reading from client. If defaultRef is empty,
// the repository's default branch is used.
func NewGitSource(client *gitclient.Client, defaultRef string) (*GitSource, error) {
	if defaultRef == "" {
		b, err := client.DefaultBranch()
		if err != nil {
			return nil, err
		}
		defaultRef = b
	}
	return &GitSource{
		client:     client,
		defaultRef: defaultRef,
	}, nil
}

func (g *GitSource) DefaultRef() string {
	return g.defaultRef
}

func (g *GitSource) Refresh(ctx context.Context) error {
	g.refs = nil
	return g.client.Update(ctx)
}

func (g *GitSource) Store(ref string) (Store, error) {
	if ref == "" {
		ref = g.defaultRef
	}
	refs, err := g.ListReferences()
	if err != nil {
		return nil, fmt.Errorf("cannot list references: %w", err)
	}
	if !slices.Contains(refs, ref) {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchRef, ref)
	}
	return &gitStore{
		client: g.client,
		ref:    ref,
	}, nil
}

func (g *GitSource) ListReferences() ([]string, error) {
	if g.refs != nil {
		return g.refs, nil
	}
	refs, err := g.client.ListReferences()
	if err != nil {
		return nil, err
	}
	slices.Sort(refs)
	g.refs = refs
	return refs, nil
}

func (g *gitStore) ListFiles(dir string) ([]string, error) {
	files, err := g.client.ListFilesRecursive(g.ref, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	result := make([]string, len(files))
	for i, f := range files {
		// Git paths use "/" on any OS.
		result[i] = path.Join(dir, f)
	}
	return result, nil
}

func (g *gitStore) ReadFile(path string) ([]byte, error) {
	return g.client.ReadFile(g.ref, path)
}

func (g *gitStore) WriteFile(path string, contents []byte) error {
	return ErrReadOnly
}

// listFilesRecursively lists all files in subDir, which must
// be a relative path specifying a sub-directory of rootDir.
// The resulting paths are relative to rootDir.
//
// Example:
// with rootDir "/data" and subDir "ckan/2024", all files under
// "/data/ckan/2024" are returned relative to "/data", such as
// ["ckan/2024/gdp.json"].
func listFilesRecursively(rootDir, subDir string) ([]string, error) {
	var files []string

	startDir := filepath.Join(rootDir, subDir)
	err := filepath.WalkDir(startDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(rootDir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(relPath))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// RecordFiles lists all files under dir whose extension is one of exts
// (case-insensitive, with leading dot, e.g. ".json"). The result is sorted.
func RecordFiles(st Store, dir string, exts []string) ([]string, error) {
	allFiles, err := st.ListFiles(dir)
	if err != nil {
		return nil, err
	}
	var result []string
	for _, f := range allFiles {
		if slices.Contains(exts, strings.ToLower(path.Ext(f))) {
			result = append(result, f)
		}
	}
	slices.Sort(result)
	return result, nil
}

// ReadRecords reads the records stored in path. See DecodeRecords.
func ReadRecords(st Store, path string) ([]*record.Record, error) {
	bs, err := st.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeRecords(path, bs)
}

// DecodeRecords decodes the contents of the file named name. Names ending in
// .yml or .yaml are decoded as a YAML stream; all others as JSON holding one
// object or an array of objects. A Catalog API response envelope
// {"success": true, "result": ...} is unwrapped.
func DecodeRecords(name string, data []byte) ([]*record.Record, error) {
	var (
		records []*record.Record
		err     error
	)
	if isYAML(name) {
		records, err = record.ParseYAML(data)
	} else {
		records, err = record.ParseList(data)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid record file %s: %w", name, err)
	}
	if len(records) == 1 {
		return unwrapEnvelope(name, records[0])
	}
	return records, nil
}

func unwrapEnvelope(path string, r *record.Record) ([]*record.Record, error) {
	if !r.Has("success") || !r.Has("result") {
		return []*record.Record{r}, nil
	}
	if ok, _ := r.Value("success").(bool); !ok {
		return nil, fmt.Errorf("%s holds an unsuccessful API response: %s", path, describeError(r.Value("error")))
	}
	switch x := r.Value("result").(type) {
	case *record.Record:
		return []*record.Record{x}, nil
	case []any:
		var rs []*record.Record
		for i, e := range x {
			rec, ok := e.(*record.Record)
			if !ok {
				return nil, fmt.Errorf("%s: result element #%d is not an object", path, i)
			}
			rs = append(rs, rec)
		}
		return rs, nil
	}
	return nil, fmt.Errorf("%s: API response result is neither an object nor a list", path)
}

func describeError(v any) string {
	if v == nil {
		return "no error details"
	}
	s, err := record.Stringify(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

func isYAML(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	return ext == ".yml" || ext == ".yaml"
}

// Format is the serialization format of written records.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat parses "json" or "yaml".
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("invalid format %q (want json or yaml)", s)
}

// Ext returns the file extension for f, including the leading dot.
func (f Format) Ext() string {
	if f == FormatYAML {
		return ".yaml"
	}
	return ".json"
}

// EncodeRecord serializes rec in the given format, preserving key order.
// A non-positive indent selects the format's default.
func EncodeRecord(rec *record.Record, f Format, indent int) ([]byte, error) {
	switch f {
	case FormatJSON:
		if indent <= 0 {
			indent = JSONIndent
		}
		return record.MarshalIndent(rec, strings.Repeat(" ", indent))
	case FormatYAML:
		if indent <= 0 {
			indent = YAMLIndent
		}
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(indent)
		node, err := rec.YAMLNode()
		if err != nil {
			return nil, fmt.Errorf("failed to encode YAML: %w", err)
		}
		if err := enc.Encode(node); err != nil {
			return nil, fmt.Errorf("failed to encode YAML: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to close encoder: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("invalid format %q", f)
}

// EncodeRecords serializes several records: as a JSON array, or as a
// stream of YAML documents.
func EncodeRecords(recs []*record.Record, f Format, indent int) ([]byte, error) {
	if len(recs) == 1 {
		return EncodeRecord(recs[0], f, indent)
	}
	switch f {
	case FormatJSON:
		if indent <= 0 {
			indent = JSONIndent
		}
		list := make([]any, len(recs))
		for i, r := range recs {
			list[i] = r
		}
		return record.MarshalIndent(list, strings.Repeat(" ", indent))
	case FormatYAML:
		var buf bytes.Buffer
		for _, r := range recs {
			bs, err := EncodeRecord(r, f, indent)
			if err != nil {
				return nil, err
			}
			buf.WriteString("---\n")
			buf.Write(bs)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("invalid format %q", f)
}

// WriteRecord encodes rec and writes it to path in st.
func WriteRecord(st Store, path string, rec *record.Record, f Format, indent int) error {
	bs, err := EncodeRecord(rec, f, indent)
	if err != nil {
		return fmt.Errorf("cannot encode %s: %w", path, err)
	}
	if err := st.WriteFile(path, bs); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}

// OutputPath maps an input file path to the output path in format f,
// replacing the input's extension.
func OutputPath(inputPath string, f Format) string {
	return strings.TrimSuffix(inputPath, path.Ext(inputPath)) + f.Ext()
}
