package orchestrator

import (
	"testing"

	"github.com/shubhsaxena/catalog-search/internal/config"
	"github.com/shubhsaxena/catalog-search/internal/models"
)

func defaultScorer() *Scorer {
	return NewScorer(config.DefaultConfig().Search.Relevance)
}

func TestScorer_FieldMatchLevels(t *testing.T) {
	s := defaultScorer()

	tests := []struct {
		name string
		rec  models.ProductRecord
		term string
		want int
	}{
		{"exact description", models.ProductRecord{Description: "Monitor"}, "monitor", 60},
		{"whole word description", models.ProductRecord{Description: "Monitor LED 24"}, "monitor", 40},
		{"substring description", models.ProductRecord{Description: "Monitores LED"}, "monitor", 20},
		{"no match", models.ProductRecord{Description: "Teclado"}, "monitor", 0},
		{"exact vendor", models.ProductRecord{VendorName: "HP"}, "hp", 45},
		{"exact part number", models.ProductRecord{PartNumber: "ABC123"}, "abc123", 30},
		{"whole word vendor part", models.ProductRecord{VendorPartNumber: "X-100 B"}, "x 100", 20},
		{"exact category", models.ProductRecord{Category: "Monitores"}, "monitores", 24},
		{"substring subcategory", models.ProductRecord{Subcategory: "Monitores Gamer"}, "gam", 8},
		{"accent insensitive", models.ProductRecord{Category: "Teléfonos"}, "telefonos", 24},
		{"empty term", models.ProductRecord{Description: "Monitor"}, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// query "" disables the token bonus so only field scores count
			if got := s.Score(tt.rec, tt.term, ""); got != tt.want {
				t.Errorf("Score() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScorer_TokenBonus(t *testing.T) {
	s := defaultScorer()
	rec := models.ProductRecord{
		Description: "Laptop HP ProBook",
		VendorName:  "HP",
		Category:    "Computadoras",
	}

	// term "zzz" scores no fields; bonus: laptop, hp, computadoras found, gamer not
	got := s.Score(rec, "zzz", "laptop hp gamer computadoras hp")
	if got != 15 {
		t.Errorf("expected 15 from token bonus, got %d", got)
	}
}

func TestScorer_ExactBeatsSubstring(t *testing.T) {
	s := defaultScorer()

	exact := models.ProductRecord{PartNumber: "1", Description: "impresora"}
	partial := models.ProductRecord{PartNumber: "2", Description: "impresoras laser"}

	a := s.Score(exact, "impresora", "impresora")
	b := s.Score(partial, "impresora", "impresora")
	if a <= b {
		t.Errorf("exact match score %d should exceed substring score %d", a, b)
	}
}

func TestScorer_Additive(t *testing.T) {
	s := defaultScorer()
	rec := models.ProductRecord{
		Description: "Monitor",
		Category:    "Monitor",
	}

	// 60 (description exact) + 24 (category exact) + 5 (token bonus)
	if got := s.Score(rec, "monitor", "monitor"); got != 89 {
		t.Errorf("expected 89, got %d", got)
	}
}
