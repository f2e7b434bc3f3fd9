package offer

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestToResponseIncludesTTLSeconds(t *testing.T) {
	ttl := 3600 * time.Second
	o := Offer{
		ID:        uuid.New(),
		Name:      "weekly digest",
		PriceSats: 500,
		Active:    true,
		DefaultTTL: &ttl,
	}

	resp := o.ToResponse()
	if resp.DefaultTTLSeconds == nil || *resp.DefaultTTLSeconds != 3600 {
		t.Fatalf("ToResponse().DefaultTTLSeconds = %v, want 3600", resp.DefaultTTLSeconds)
	}
}

func TestToResponseOmitsTTLWhenUnset(t *testing.T) {
	o := Offer{ID: uuid.New(), Name: "one-off read", PriceSats: 100}
	resp := o.ToResponse()
	if resp.DefaultTTLSeconds != nil {
		t.Fatalf("ToResponse().DefaultTTLSeconds = %v, want nil", resp.DefaultTTLSeconds)
	}
}

func TestDurationFromSeconds(t *testing.T) {
	if d := durationFromSeconds(nil); d != nil {
		t.Fatalf("durationFromSeconds(nil) = %v, want nil", d)
	}

	seconds := int64(60)
	d := durationFromSeconds(&seconds)
	if d == nil || *d != time.Minute {
		t.Fatalf("durationFromSeconds(60) = %v, want 1m", d)
	}
}
