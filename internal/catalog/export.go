// Package catalog renders the peer-facing model catalog and keeps the
// exposure/health state behind it.
package catalog

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"relayd/pkg/types"
)

// LocalEndpointID is the endpointID of models served on this host.
const LocalEndpointID = "local"

// Record is one exported model. Fields are declared in key order so the
// encoded object has sorted keys.
type Record struct {
	Context             *int     `json:"context"`
	DisplayName         string   `json:"displayName"`
	EndpointID          string   `json:"endpointID"`
	Health              string   `json:"health"`
	Identifier          *string  `json:"identifier"`
	ModelID             string   `json:"modelID"`
	Provider            *string  `json:"provider"`
	ProviderDisplayName *string  `json:"providerDisplayName"`
	Quant               *string  `json:"quant"`
	RecordName          string   `json:"recordName"`
	SizeBytes           *int64   `json:"sizeBytes"`
	Tags                []string `json:"tags"`
}

// Export joins exposed, non-error entries with their descriptors and
// returns records sorted by model id. Entries without a descriptor are dropped.
func Export(entries []types.CatalogEntry, descs map[string]types.Descriptor, backends map[string]types.Backend) []Record {
	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		if !e.Exposed || e.Health == types.HealthError {
			continue
		}
		d, ok := descs[e.ModelID]
		if !ok {
			continue
		}
		out = append(out, record(e, d, backends))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}

// ExportJSON encodes Export's result.
func ExportJSON(entries []types.CatalogEntry, descs map[string]types.Descriptor, backends map[string]types.Backend) ([]byte, error) {
	return json.Marshal(Export(entries, descs, backends))
}

func record(e types.CatalogEntry, d types.Descriptor, backends map[string]types.Backend) Record {
	r := Record{
		DisplayName: firstNonEmpty(e.DisplayName, d.DisplayName, d.ID),
		EndpointID:  LocalEndpointID,
		Health:      string(e.Health),
		Identifier:  optString(d.Identifier),
		ModelID:     d.ID,
		Provider:    optString(d.Provider),
		Quant:       optString(d.Quant),
		RecordName:  "model." + Slug(d.ID),
		Tags:        append([]string{}, d.Tags...),
	}
	if r.Health == "" {
		r.Health = string(types.HealthOK)
	}
	if d.Context > 0 {
		c := d.Context
		r.Context = &c
	}
	if d.SizeBytes > 0 {
		s := d.SizeBytes
		r.SizeBytes = &s
	}
	if rk, ok := d.Kind.(types.RemoteKind); ok {
		r.EndpointID = rk.BackendRef
		if b, ok := backends[rk.BackendRef]; ok {
			r.ProviderDisplayName = optString(firstNonEmpty(b.DisplayName, b.ID))
			if r.Provider == nil {
				r.Provider = optString(string(b.Dialect))
			}
		}
	}
	return r
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases s and collapses runs of other characters into '-'.
func Slug(s string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
