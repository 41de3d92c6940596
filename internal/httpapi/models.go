package httpapi

import (
	"net/http"

	"relayd/pkg/types"
)

const ownerLocal = "relayd"

func formatOf(d types.Descriptor) string {
	if k, ok := d.Kind.(types.LocalKind); ok {
		return string(k.Format)
	}
	return "remote"
}

func (a *api) loadedSet() map[string]bool {
	st := a.svc.Status()
	out := make(map[string]bool, len(st.Loaded))
	for _, m := range st.Loaded {
		out[m.ModelID] = true
	}
	return out
}

// openAIModels godoc
// @Summary      List models (OpenAI)
// @Tags         openai
// @Produce      json
// @Success      200 {object} types.ModelList
// @Router       /v1/models [get]
func (a *api) openAIModels(w http.ResponseWriter, r *http.Request) {
	descs := a.svc.Models()
	out := types.ModelList{Object: "list", Data: make([]types.ModelCard, 0, len(descs))}
	for _, d := range descs {
		owner := d.Provider
		if owner == "" {
			owner = ownerLocal
		}
		out.Data = append(out.Data, types.ModelCard{ID: d.ID, Object: "model", Created: a.started.Unix(), OwnedBy: owner})
	}
	writeJSON(w, http.StatusOK, out)
}

// ollamaTags godoc
// @Summary      List models (Ollama)
// @Tags         ollama
// @Produce      json
// @Success      200 {object} types.OllamaTags
// @Router       /api/tags [get]
func (a *api) ollamaTags(w http.ResponseWriter, r *http.Request) {
	descs := a.svc.Models()
	out := types.OllamaTags{Models: make([]types.OllamaModel, 0, len(descs))}
	for _, d := range descs {
		out.Models = append(out.Models, types.OllamaModel{
			Name:  d.ID,
			Model: d.ID,
			Size:  d.SizeBytes,
			Details: types.OllamaModelDetails{
				Format:            formatOf(d),
				QuantizationLevel: d.Quant,
			},
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// lmStudioModels godoc
// @Summary      List models (LM Studio)
// @Tags         lmstudio
// @Produce      json
// @Success      200 {object} types.LMStudioModelList
// @Router       /api/v0/models [get]
func (a *api) lmStudioModels(w http.ResponseWriter, r *http.Request) {
	descs := a.svc.Models()
	loaded := a.loadedSet()
	out := types.LMStudioModelList{Object: "list", Data: make([]types.LMStudioModel, 0, len(descs))}
	for _, d := range descs {
		m := types.LMStudioModel{
			ID:                d.ID,
			Object:            "model",
			Type:              "llm",
			Publisher:         d.Provider,
			CompatibilityType: formatOf(d),
			Quantization:      d.Quant,
			State:             "not-loaded",
			MaxContextLength:  d.Context,
		}
		if d.HasTag("vision") {
			m.Type = "vlm"
		}
		if loaded[d.ID] {
			m.State = "loaded"
		}
		out.Data = append(out.Data, m)
	}
	writeJSON(w, http.StatusOK, out)
}
