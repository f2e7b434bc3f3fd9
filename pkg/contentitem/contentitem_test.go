package contentitem

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestUpdateRequestIsEmpty(t *testing.T) {
	published := StatusPublished

	tests := []struct {
		name string
		req  UpdateRequest
		want bool
	}{
		{"both unset", UpdateRequest{}, true},
		{"data only", UpdateRequest{Data: json.RawMessage(`{"a":1}`)}, false},
		{"status only", UpdateRequest{Status: &published}, false},
		{"both set", UpdateRequest{Data: json.RawMessage(`{}`), Status: &published}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.IsEmpty(); got != tt.want {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestItemToResponse(t *testing.T) {
	now := time.Now()
	item := Item{
		ID:            uuid.New(),
		ContentTypeID: uuid.New(),
		Data:          json.RawMessage(`{"title":"hi"}`),
		Status:        StatusDraft,
		Version:       3,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	resp := item.ToResponse()
	if resp.ID != item.ID || resp.Version != 3 || resp.Status != StatusDraft {
		t.Errorf("ToResponse() = %+v, did not preserve item fields", resp)
	}
}

func TestVersionToResponse(t *testing.T) {
	v := Version{
		ID:            uuid.New(),
		ContentItemID: uuid.New(),
		Data:          json.RawMessage(`{"title":"old"}`),
		Status:        StatusPublished,
		Version:       2,
		CreatedAt:     time.Now(),
	}

	resp := v.ToResponse()
	if resp.Version != 2 || resp.Status != StatusPublished {
		t.Errorf("ToResponse() = %+v, did not preserve version fields", resp)
	}
}
