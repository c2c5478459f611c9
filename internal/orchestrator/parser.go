package orchestrator

import (
	"strings"
)

// QueryOptimizer cleans a raw user query before it reaches any backend: it
// lowercases, drops stop words, fixes whole-token misspellings and collapses
// whitespace. Punctuation inside tokens is kept so part numbers survive, and
// the token count never grows.
type QueryOptimizer struct {
	stopWords   map[string]bool
	corrections map[string]string
}

func NewQueryOptimizer() *QueryOptimizer {
	stops := map[string]bool{
		// es
		"de": true, "del": true, "la": true, "las": true, "el": true,
		"los": true, "un": true, "una": true, "unos": true, "unas": true,
		"para": true, "con": true, "sin": true, "por": true, "en": true,
		"y": true, "o": true, "al": true, "que": true, "mi": true,
		// en
		"the": true, "a": true, "an": true, "and": true, "or": true,
		"for": true, "with": true, "of": true, "in": true, "on": true,
		"to": true, "by": true,
	}
	corrections := map[string]string{
		"lapto":       "laptop",
		"laptp":       "laptop",
		"leptop":      "laptop",
		"labtop":      "laptop",
		"notebok":     "notebook",
		"noteboook":   "notebook",
		"computadra":  "computadora",
		"compuatdora": "computadora",
		"computdora":  "computadora",
		"impresra":    "impresora",
		"impresoara":  "impresora",
		"monitr":      "monitor",
		"moniter":     "monitor",
		"teclaod":     "teclado",
		"tecaldo":     "teclado",
		"telefno":     "telefono",
		"telfono":     "telefono",
		"celuar":      "celular",
		"celulr":      "celular",
		"audifonso":   "audifonos",
		"mause":       "mouse",
		"maus":        "mouse",
		"procesdor":   "procesador",
		"memroia":     "memoria",
		"diso":        "disco",
		"ruteador":    "router",
	}
	return &QueryOptimizer{stopWords: stops, corrections: corrections}
}

func (qo *QueryOptimizer) Optimize(raw string) string {
	words := strings.Fields(strings.ToLower(raw))
	if len(words) == 0 {
		return ""
	}

	kept := make([]string, 0, len(words))
	for _, w := range words {
		key := Normalize(w)
		if qo.stopWords[key] {
			continue
		}
		if fixed, ok := qo.corrections[key]; ok {
			w = fixed
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}
