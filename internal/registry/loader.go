package registry

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"relayd/internal/common/fsutil"
	"relayd/pkg/types"
)

// ProviderLlamaCpp is the provider recorded for scanned local models.
const ProviderLlamaCpp = "llama.cpp"

// GGUFScanner walks a models directory and builds local descriptors.
type GGUFScanner struct {
	// ReadHeaders enables GGUF metadata parsing. Empty or truncated files
	// still yield descriptors from their filename.
	ReadHeaders bool
}

func NewGGUFScanner() *GGUFScanner { return &GGUFScanner{ReadHeaders: true} }

// LoadDir scans dir with a default scanner.
func LoadDir(dir string) ([]types.Descriptor, error) {
	return NewGGUFScanner().Scan(dir)
}

type ggufFile struct {
	rel  string
	abs  string
	size int64
}

// Scan walks dir recursively for *.gguf files. The descriptor ID is the path
// relative to dir using forward slashes, which for a flat directory is the
// filename. mmproj files are paired with models, never listed on their own.
func (s *GGUFScanner) Scan(dir string) ([]types.Descriptor, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	models := map[string][]ggufFile{}
	projectors := map[string][]ggufFile{}
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == abs {
				return err
			}
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if p != abs && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			return nil
		}
		rel, err := filepath.Rel(abs, p)
		if err != nil {
			return nil
		}
		var size int64
		if fi, err := d.Info(); err == nil {
			size = fi.Size()
		}
		f := ggufFile{rel: filepath.ToSlash(rel), abs: p, size: size}
		parent := filepath.Dir(p)
		if isProjector(name) {
			projectors[parent] = append(projectors[parent], f)
		} else {
			models[parent] = append(models[parent], f)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var out []types.Descriptor
	for parent, files := range models {
		projs := projectors[parent]
		sort.Slice(projs, func(i, j int) bool { return projs[i].rel < projs[j].rel })
		for _, f := range files {
			out = append(out, s.describe(f, pairProjector(f, files, projs)))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *GGUFScanner) describe(f ggufFile, projector string) types.Descriptor {
	stem := strings.TrimSuffix(filepath.Base(f.rel), filepath.Ext(f.rel))
	d := types.Descriptor{
		ID:          f.rel,
		Identifier:  strings.ToLower(stem),
		DisplayName: stem,
		Kind:        types.LocalKind{ModelRef: f.abs, Format: types.FormatGGUF, ProjectorRef: projector},
		Provider:    ProviderLlamaCpp,
		Quant:       ParseQuant(stem),
		SizeBytes:   f.size,
	}
	if projector != "" {
		d.Tags = append(d.Tags, "vision")
	}
	arch := ""
	if s.ReadHeaders && f.size > 0 {
		if info, err := ReadGGUFInfo(f.abs); err == nil {
			if info.Name != "" {
				d.DisplayName = info.Name
			}
			d.Context = info.ContextLength
			d.Settings.GPULayers = info.LayerCount
			arch = info.Architecture
		}
	}
	if looksLikeEmbedder(stem, arch) {
		d.Tags = append(d.Tags, "embedding")
	}
	return d
}

// Encoder-only architectures llama.cpp serves as embedding models.
var embeddingArchs = map[string]bool{"bert": true, "nomic-bert": true, "jina-bert-v2": true}

func looksLikeEmbedder(stem, arch string) bool {
	return embeddingArchs[strings.ToLower(arch)] || strings.Contains(strings.ToLower(stem), "embed")
}

func isProjector(name string) bool {
	return strings.Contains(strings.ToLower(name), "mmproj")
}

// pairProjector returns the projector that belongs to model: one whose name
// contains the model's base name, or the only projector next to the only model.
func pairProjector(model ggufFile, siblings, projs []ggufFile) string {
	if len(projs) == 0 {
		return ""
	}
	baseName := strings.ToLower(baseModelName(filepath.Base(model.rel)))
	for _, p := range projs {
		if baseName != "" && strings.Contains(strings.ToLower(filepath.Base(p.rel)), baseName) {
			return p.abs
		}
	}
	if len(siblings) == 1 {
		return projs[0].abs
	}
	return ""
}

var quantRe = regexp.MustCompile(`(?i)(?:^|[-_.])(I?Q[0-9](?:_[A-Z0-9]+)*|BF16|F16|F32)(?:$|[-_.])`)

// ParseQuant extracts a quantization tag such as Q4_K_M from a filename stem.
func ParseQuant(stem string) string {
	m := quantRe.FindAllStringSubmatch(stem, -1)
	if len(m) == 0 {
		return ""
	}
	return strings.ToUpper(m[len(m)-1][1])
}

// baseModelName strips the extension and quant suffix from a filename.
func baseModelName(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if q := quantRe.FindStringIndex(stem); q != nil {
		stem = stem[:q[0]]
	}
	return strings.Trim(stem, "-_.")
}
