package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_TableDriven(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean", "purchase", "purchase"},
		{"trim", " \tpurchase\n", "purchase"},
		{"nbsp_edges", nbsp + "Chrome" + nbsp, "Chrome"},
		{"nbsp_internal", "Mac" + nbsp + "OS", "Mac OS"},
		// "e" + COMBINING ACUTE ACCENT recomposes to U+00E9.
		{"nfc", "cafe\u0301", "caf\u00e9"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestHasEdgeSpace(t *testing.T) {
	assert.False(t, HasEdgeSpace(""))
	assert.False(t, HasEdgeSpace("a b"))
	assert.True(t, HasEdgeSpace(" a"))
	assert.True(t, HasEdgeSpace("a\n"))
	assert.True(t, HasEdgeSpace("\r"))
}

func TestCanonicalName(t *testing.T) {
	tests := map[string]string{
		"event_id":          "event_id",
		"Event Type":        "event_type",
		"  Page-URL ":       "page_url",
		"payment.method":    "payment_method",
		"Identifikační čís": "identifikacni_cis",
		"__os__":            "os",
		"%%%":               "col",
	}
	for in, want := range tests {
		assert.Equal(t, want, CanonicalName(in), "CanonicalName(%q)", in)
	}
}
