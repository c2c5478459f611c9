package orchestrator

import (
	"reflect"
	"testing"

	"github.com/shubhsaxena/catalog-search/internal/config"
)

func defaultClassifier() *PartNumberClassifier {
	return NewPartNumberClassifier(config.SKUConfig{MinLength: 3, MaxVariants: 5})
}

func TestPartNumberClassifier_IsCandidate(t *testing.T) {
	c := defaultClassifier()

	tests := []struct {
		name   string
		query  string
		vendor string
		want   bool
	}{
		{"plain alphanumeric", "8SN7A", "", true},
		{"with dash", "ab-12", "", true},
		{"with spaces and underscores", "ab 12_cd", "", true},
		{"letters only", "monitor", "", true},
		{"too short", "a-b", "", false},
		{"exactly min length", "abc", "", true},
		{"vendor filter disables", "8SN7A", "HP", false},
		{"whitespace vendor ignored", "8SN7A", "  ", true},
		{"punctuation", "ab.12", "", false},
		{"accented letter", "teléfono", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.IsCandidate(tt.query, tt.vendor); got != tt.want {
				t.Errorf("IsCandidate(%q, %q) = %v, want %v", tt.query, tt.vendor, got, tt.want)
			}
		})
	}
}

func TestPartNumberClassifier_RequireDigit(t *testing.T) {
	c := NewPartNumberClassifier(config.SKUConfig{MinLength: 3, MaxVariants: 5, RequireDigit: true})

	if c.IsCandidate("monitor", "") {
		t.Error("expected letters-only query rejected when a digit is required")
	}
	if !c.IsCandidate("mon1tor", "") {
		t.Error("expected query with digit accepted")
	}
}

func TestPartNumberClassifier_Variants(t *testing.T) {
	c := defaultClassifier()

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"empty", "  ", nil},
		{"plain", "abc123", []string{"ABC123"}},
		{"dash", "ab-12", []string{"AB-12", "AB12"}},
		{"space", "ab 12", []string{"AB 12", "AB-12", "AB12"}},
		{"underscore", "ab_12", []string{"AB_12", "AB-12", "AB12"}},
		{"mixed", "ab 12-c_d", []string{"AB 12-C_D", "AB-12-C_D", "AB 12C_D", "AB12-C_D", "AB 12-C-D"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Variants(tt.query)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Variants(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestPartNumberClassifier_VariantsCapped(t *testing.T) {
	c := NewPartNumberClassifier(config.SKUConfig{MinLength: 3, MaxVariants: 2})

	got := c.Variants("ab 12-c_d")
	if len(got) != 2 {
		t.Fatalf("expected 2 variants, got %d: %v", len(got), got)
	}
	if got[0] != "AB 12-C_D" {
		t.Errorf("expected original spelling first, got %q", got[0])
	}
}
