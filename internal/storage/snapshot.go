package storage

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Snapshot layout inside the snapshot root.
const (
	CurrentFile  = "CURRENT"
	ManifestFile = "manifest.json"
	ChunksFile   = "chunks.jsonl"
	VectorsFile  = "vectors.f32"

	snapshotPrefix = "snap-"
)

// Manifest describes one snapshot and how to interpret its vectors.
type Manifest struct {
	SnapshotID string `json:"snapshot_id"`
	CreatedAt  string `json:"created_at"`
	ModelID    string `json:"model_id"`
	Dim        int    `json:"dim"`
	Metric     string `json:"metric"`
	Backend    string `json:"backend"`
	Collection string `json:"collection,omitempty"`
	Documents  int    `json:"documents"`
	Projects   int    `json:"projects"`
	Chunks     int    `json:"chunks"`
}

// Validate checks the fields every reader depends on.
func (m *Manifest) Validate() error {
	switch {
	case m.SnapshotID == "":
		return fmt.Errorf("%w: missing snapshot_id", ErrInvalidManifest)
	case m.Dim <= 0:
		return fmt.Errorf("%w: invalid dim %d", ErrInvalidManifest, m.Dim)
	case m.Metric != MetricCosine:
		return fmt.Errorf("%w: unsupported metric %q", ErrInvalidManifest, m.Metric)
	case m.Backend != BackendFile && m.Backend != BackendQdrant:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidManifest, m.Backend)
	case m.Backend == BackendQdrant && m.Collection == "":
		return fmt.Errorf("%w: qdrant backend without collection", ErrInvalidManifest)
	}
	return nil
}

// NewSnapshotID returns a sortable, unique snapshot name.
func NewSnapshotID(now time.Time) string {
	return snapshotPrefix + now.UTC().Format("20060102T150405Z") + "-" + uuid.NewString()[:8]
}

// CollectionName is the Qdrant collection holding a snapshot's chunks.
func CollectionName(snapshotID string) string {
	return "ask_et_" + strings.NewReplacer("-", "_").Replace(strings.TrimPrefix(snapshotID, snapshotPrefix))
}

// CurrentSnapshot resolves the directory CURRENT points at.
// Returns ErrNoSnapshot when nothing has been published yet.
func CurrentSnapshot(root string) (string, error) {
	b, err := os.ReadFile(filepath.Join(root, CurrentFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w in %s", ErrNoSnapshot, root)
		}
		return "", fmt.Errorf("cannot read %s: %w", CurrentFile, err)
	}
	name := strings.TrimSpace(string(b))
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: malformed %s %q", ErrNoSnapshot, CurrentFile, name)
	}
	return filepath.Join(root, name), nil
}

// ReadManifest loads and validates dir/manifest.json.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidManifest, path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// WriteManifest writes dir/manifest.json.
func WriteManifest(dir string, m *Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.CreatedAt == "" {
		m.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	return writeJSON(filepath.Join(dir, ManifestFile), m)
}

// Publish atomically points CURRENT at the snapshot directory name.
// The snapshot must be fully written before this is called.
func Publish(root, name string) error {
	tmp, err := os.CreateTemp(root, CurrentFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("cannot create temp pointer: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(name + "\n"); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("cannot write temp pointer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("cannot sync temp pointer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, filepath.Join(root, CurrentFile)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("cannot publish snapshot %s: %w", name, err)
	}
	return nil
}

// ListSnapshots returns snapshot directory names under root, oldest first.
func ListSnapshots(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), snapshotPrefix) {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// WriteChunks writes chunks.jsonl and vectors.f32 into dir.
// Every chunk must carry an embedding of length dim.
func WriteChunks(dir string, chunks []*Chunk, dim int) error {
	for i, c := range chunks {
		if len(c.Embedding) != dim {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(c.Embedding), dim)
		}
	}

	cf, err := os.Create(filepath.Join(dir, ChunksFile))
	if err != nil {
		return fmt.Errorf("cannot create chunks file: %w", err)
	}
	bw := bufio.NewWriter(cf)
	enc := json.NewEncoder(bw)
	for _, c := range chunks {
		if err := enc.Encode(c); err != nil {
			_ = cf.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		_ = cf.Close()
		return err
	}
	if err := cf.Close(); err != nil {
		return err
	}

	vf, err := os.Create(filepath.Join(dir, VectorsFile))
	if err != nil {
		return fmt.Errorf("cannot create vectors file: %w", err)
	}
	vw := bufio.NewWriter(vf)
	for _, c := range chunks {
		if err := binary.Write(vw, binary.LittleEndian, c.Embedding); err != nil {
			_ = vf.Close()
			return fmt.Errorf("cannot write vectors: %w", err)
		}
	}
	if err := vw.Flush(); err != nil {
		_ = vf.Close()
		return err
	}
	return vf.Close()
}

// ReadChunks loads chunks.jsonl and, when withVectors is set, attaches the
// embeddings from vectors.f32.
func ReadChunks(dir string, dim int, withVectors bool) ([]*Chunk, error) {
	path := filepath.Join(dir, ChunksFile)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open chunks file %s: %w", path, err)
	}
	defer f.Close()

	var chunks []*Chunk
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var c Chunk
		if err := json.Unmarshal(line, &c); err != nil {
			return nil, fmt.Errorf("invalid chunks JSONL %s: %w", path, err)
		}
		chunks = append(chunks, &c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read chunks file %s: %w", path, err)
	}
	if !withVectors {
		return chunks, nil
	}

	vectors, err := readVectors(filepath.Join(dir, VectorsFile), len(chunks), dim)
	if err != nil {
		return nil, err
	}
	for i, c := range chunks {
		c.Embedding = vectors[i*dim : (i+1)*dim : (i+1)*dim]
	}
	return chunks, nil
}

func readVectors(path string, n, dim int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open vector file %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("cannot stat vector file %s: %w", path, err)
	}
	expected := int64(n) * int64(dim) * 4
	if st.Size() != expected {
		return nil, fmt.Errorf("%w: vector file size %d, want %d (chunks=%d dim=%d)",
			ErrDimensionMismatch, st.Size(), expected, n, dim)
	}

	out := make([]float32, n*dim)
	if err := binary.Read(io.LimitReader(f, expected), binary.LittleEndian, out); err != nil {
		return nil, fmt.Errorf("cannot read vectors from %s: %w", path, err)
	}
	return out, nil
}
