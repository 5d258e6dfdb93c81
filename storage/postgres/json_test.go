package postgres

import (
	"testing"

	"github.com/diffsentry/diffsentry/storage"
)

func TestUsageJSONRoundTrip(t *testing.T) {
	usage := &storage.TokenUsage{InputTokens: 1200, OutputTokens: 340}

	got := usageFromJSON(usageToJSON(usage))
	if got == nil {
		t.Fatal("round trip lost the usage")
	}
	if got.InputTokens != 1200 || got.OutputTokens != 340 {
		t.Errorf("round trip = %+v, want %+v", got, usage)
	}
}

func TestUsageJSONNil(t *testing.T) {
	if got := usageToJSON(nil); got != "null" {
		t.Errorf("usageToJSON(nil) = %q, want null", got)
	}
	for _, s := range []string{"", "null", "{broken"} {
		if got := usageFromJSON(s); got != nil {
			t.Errorf("usageFromJSON(%q) = %+v, want nil", s, got)
		}
	}
}
