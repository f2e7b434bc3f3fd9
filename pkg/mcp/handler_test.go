package mcp

import (
	"encoding/json"
	"testing"

	"github.com/wisbric/contentkeep/pkg/contentitem"
	"github.com/wisbric/contentkeep/pkg/offer"
)

func TestIdOrNilParsesStringAndNumber(t *testing.T) {
	if v := idOrNil(json.RawMessage(`"req-1"`)); v != "req-1" {
		t.Errorf("idOrNil(string) = %v, want req-1", v)
	}
	if v := idOrNil(json.RawMessage(`7`)); v != float64(7) {
		t.Errorf("idOrNil(number) = %v, want 7", v)
	}
}

func TestIdOrNilEmptyIsNil(t *testing.T) {
	if v := idOrNil(nil); v != nil {
		t.Errorf("idOrNil(nil) = %v, want nil", v)
	}
	if v := idOrNil(json.RawMessage{}); v != nil {
		t.Errorf("idOrNil(empty) = %v, want nil", v)
	}
}

func TestClassifyErrorMapsNotFound(t *testing.T) {
	got := classifyError(offer.ErrNotFound)
	if got == nil || got.Code != codeInvalidParams {
		t.Fatalf("classifyError(ErrNotFound) = %+v, want code %d", got, codeInvalidParams)
	}
}

func TestClassifyErrorMapsVersionConflict(t *testing.T) {
	got := classifyError(contentitem.ErrVersionConflict)
	if got == nil || got.Code != codeInvalidRequest {
		t.Fatalf("classifyError(ErrVersionConflict) = %+v, want code %d", got, codeInvalidRequest)
	}
}

func TestClassifyErrorNilIsNil(t *testing.T) {
	if got := classifyError(nil); got != nil {
		t.Errorf("classifyError(nil) = %+v, want nil", got)
	}
}

func TestBuildToolRegistryCoversAllFiveTools(t *testing.T) {
	h := &Handler{}
	reg := h.buildToolRegistry()

	want := []string{"content.create", "content.get", "content.update", "content.rollback", "offer.purchase"}
	for _, name := range want {
		if _, ok := reg[name]; !ok {
			t.Errorf("buildToolRegistry() missing tool %q", name)
		}
	}
	if len(reg) != len(want) {
		t.Errorf("buildToolRegistry() = %d tools, want %d", len(reg), len(want))
	}
}
