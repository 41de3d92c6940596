package registry

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"relayd/internal/common/fsutil"
	"relayd/internal/config"
	"relayd/pkg/types"
)

// Manifest declares remote backends and descriptors that cannot be
// discovered by scanning: remote models and local models living elsewhere.
type Manifest struct {
	Backends []types.Backend `json:"backends" yaml:"backends" toml:"backends" validate:"dive"`
	Models   []ManifestModel `json:"models" yaml:"models" toml:"models" validate:"dive"`

	// Relative model paths resolve against dir.
	dir string
}

// ManifestModel is one declared model. Exactly one of Path or Backend is set.
type ManifestModel struct {
	ID          string              `json:"id" yaml:"id" toml:"id" validate:"required"`
	Identifier  string              `json:"identifier" yaml:"identifier" toml:"identifier"`
	DisplayName string              `json:"display_name" yaml:"display_name" toml:"display_name"`
	Path        string              `json:"path" yaml:"path" toml:"path" validate:"required_without=Backend,excluded_with=Backend"`
	Format      string              `json:"format" yaml:"format" toml:"format" validate:"omitempty,oneof=gguf mlx et"`
	Projector   string              `json:"projector" yaml:"projector" toml:"projector"`
	Backend     string              `json:"backend" yaml:"backend" toml:"backend" validate:"required_without=Path"`
	RemoteModel string              `json:"remote_model" yaml:"remote_model" toml:"remote_model"`
	Provider    string              `json:"provider" yaml:"provider" toml:"provider"`
	Tags        []string            `json:"tags" yaml:"tags" toml:"tags"`
	Context     int                 `json:"context" yaml:"context" toml:"context" validate:"gte=0"`
	Quant       string              `json:"quant" yaml:"quant" toml:"quant"`
	SizeBytes   int64               `json:"size_bytes" yaml:"size_bytes" toml:"size_bytes" validate:"gte=0"`
	Settings    types.ModelSettings `json:"settings" yaml:"settings" toml:"settings"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadManifest reads and validates a manifest file (.yaml/.yml, .json, .toml).
func LoadManifest(path string) (Manifest, error) {
	var m Manifest
	if err := config.Decode(path, &m); err != nil {
		return m, err
	}
	if err := m.Validate(); err != nil {
		return m, err
	}
	m.dir = filepath.Dir(path)
	return m, nil
}

// Validate checks field constraints and cross references.
func (m Manifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	backends := map[string]bool{}
	for _, b := range m.Backends {
		if backends[b.ID] {
			return fmt.Errorf("invalid manifest: duplicate backend %q", b.ID)
		}
		backends[b.ID] = true
	}
	ids := map[string]bool{}
	for _, mm := range m.Models {
		if ids[mm.ID] {
			return fmt.Errorf("invalid manifest: duplicate model %q", mm.ID)
		}
		ids[mm.ID] = true
		if mm.Backend != "" && !backends[mm.Backend] {
			return fmt.Errorf("invalid manifest: model %q references unknown backend %q", mm.ID, mm.Backend)
		}
	}
	return nil
}

// BackendMap indexes the declared backends by id.
func (m Manifest) BackendMap() map[string]types.Backend {
	out := make(map[string]types.Backend, len(m.Backends))
	for _, b := range m.Backends {
		out[b.ID] = b
	}
	return out
}

// Descriptors converts the declared models into descriptors.
func (m Manifest) Descriptors() ([]types.Descriptor, error) {
	backends := m.BackendMap()
	out := make([]types.Descriptor, 0, len(m.Models))
	for _, mm := range m.Models {
		d := types.Descriptor{
			ID:          mm.ID,
			Identifier:  mm.Identifier,
			DisplayName: mm.DisplayName,
			Provider:    mm.Provider,
			Settings:    mm.Settings,
			Tags:        append([]string(nil), mm.Tags...),
			Context:     mm.Context,
			Quant:       mm.Quant,
			SizeBytes:   mm.SizeBytes,
		}
		if d.Identifier == "" {
			d.Identifier = strings.ToLower(mm.ID)
		}
		if d.DisplayName == "" {
			d.DisplayName = mm.ID
		}
		if mm.Backend != "" {
			remote := mm.RemoteModel
			if remote == "" {
				remote = mm.ID
			}
			d.Kind = types.RemoteKind{BackendRef: mm.Backend, RemoteModelRef: remote}
			if d.Provider == "" {
				d.Provider = string(backends[mm.Backend].Dialect)
			}
		} else {
			path, err := fsutil.Resolve(m.dir, mm.Path)
			if err != nil {
				return nil, err
			}
			proj, err := fsutil.Resolve(m.dir, mm.Projector)
			if err != nil {
				return nil, err
			}
			format := types.Format(mm.Format)
			if format == "" {
				format = types.FormatGGUF
			}
			d.Kind = types.LocalKind{ModelRef: path, Format: format, ProjectorRef: proj}
			if d.Provider == "" {
				d.Provider = ProviderLlamaCpp
			}
			if d.Quant == "" {
				d.Quant = ParseQuant(mm.ID)
			}
			if d.Quant == "" {
				d.Quant = ParseQuant(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
			}
		}
		out = append(out, d)
	}
	return out, nil
}

// Merge combines scanned and declared descriptors. Declared entries replace
// scanned ones with the same id. The result is sorted by id.
func Merge(scanned, declared []types.Descriptor) []types.Descriptor {
	byID := make(map[string]types.Descriptor, len(scanned)+len(declared))
	for _, d := range scanned {
		byID[d.ID] = d
	}
	for _, d := range declared {
		byID[d.ID] = d
	}
	out := make([]types.Descriptor, 0, len(byID))
	for _, d := range byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
