//go:build !swagger

package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"relayd/pkg/types"
)

func TestMountSwagger_DisabledExplains(t *testing.T) {
	w := get(NewMux(&mockService{}), "/swagger/index.html")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	var er types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode: %v body=%s", err, w.Body.String())
	}
	if er.Error == "" || er.Code != http.StatusNotFound {
		t.Fatalf("unexpected error body: %+v", er)
	}
}
