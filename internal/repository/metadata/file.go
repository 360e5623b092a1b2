package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/release-mirror/internal/domain/release"
)

// Filename is the name of the metadata record inside the meta directory.
const Filename = "metadata.json"

// Keys written by the mirror.
const (
	KeyLastUpdated         = "last_updated"
	KeyTrackingDirectories = "tracking_directories"
)

const (
	dirMode  = 0o755
	fileMode = 0o644
)

// Repository defines persistence operations for the metadata record.
type Repository interface {
	Load(ctx context.Context) (map[string]any, error)
	Merge(ctx context.Context, patch map[string]any) error
}

// FileRepository stores the metadata record as JSON on an afero filesystem.
// JSON is produced and consumed via protojson on a structpb.Struct.
type FileRepository struct {
	fs   afero.Fs
	path string
	// mu serialises merges issued through this repository.
	mu sync.Mutex
}

// Path returns the location of the metadata record under a mirror root.
func Path(root string) string {
	return filepath.Join(root, release.MetaDirectory, Filename)
}

// NewFileRepository creates a repository that reads and writes JSON at path.
func NewFileRepository(fs afero.Fs, path string) *FileRepository {
	return &FileRepository{
		fs:   fs,
		path: filepath.Clean(path),
	}
}

// Load returns the stored document. A missing record is an empty document.
func (r *FileRepository) Load(_ context.Context) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	document, err := r.read()
	if err != nil {
		return nil, err
	}

	return document.AsMap(), nil
}

// Merge overlays patch onto the stored document and writes it back atomically.
// Patch values must be representable in JSON: nested objects as map[string]any,
// arrays as []any.
func (r *FileRepository) Merge(_ context.Context, patch map[string]any) error {
	update, err := structpb.NewStruct(patch)
	if err != nil {
		return fmt.Errorf("encode metadata patch: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	document, err := r.read()
	if err != nil {
		return err
	}

	for key, value := range update.GetFields() {
		document.Fields[key] = value
	}

	marshalOptions := protojson.MarshalOptions{
		Multiline: true,
		Indent:    "  ",
	}

	data, err := marshalOptions.Marshal(document)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	return r.write(data)
}

func (r *FileRepository) read() (*structpb.Struct, error) {
	contents, err := afero.ReadFile(r.fs, r.path)
	if errors.Is(err, os.ErrNotExist) {
		return &structpb.Struct{Fields: make(map[string]*structpb.Value)}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("read metadata file: %w", err)
	}

	var document structpb.Struct
	if err = protojson.Unmarshal(contents, &document); err != nil {
		return nil, fmt.Errorf("decode metadata file: %w", err)
	}

	if document.Fields == nil {
		document.Fields = make(map[string]*structpb.Value)
	}

	return &document, nil
}

func (r *FileRepository) write(data []byte) error {
	dir := filepath.Dir(r.path)
	if err := r.fs.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("create metadata directory: %w", err)
	}

	temp := filepath.Join(dir, "."+Filename+"-"+uuid.NewString())
	if err := afero.WriteFile(r.fs, temp, data, fileMode); err != nil {
		_ = r.fs.Remove(temp)

		return fmt.Errorf("write metadata file: %w", err)
	}

	if err := r.fs.Rename(temp, r.path); err != nil {
		_ = r.fs.Remove(temp)

		return fmt.Errorf("replace metadata file: %w", err)
	}

	return nil
}
