package orchestrator

import (
	"sort"
	"strings"
)

type keywordCategory struct {
	name  string
	terms []string
}

// KeywordMapper maps a query onto product categories by substring match and
// returns related terms for expansion and suggestions. Terms are stored
// normalized and ordered by relevance within each category.
type KeywordMapper struct {
	categories []keywordCategory
}

func NewKeywordMapper() *KeywordMapper {
	return &KeywordMapper{categories: []keywordCategory{
		{"laptop", []string{"laptop", "notebook", "portatil", "ultrabook", "chromebook", "computadora portatil"}},
		{"desktop", []string{"computadora", "desktop", "pc escritorio", "all in one", "workstation", "mini pc"}},
		{"monitor", []string{"monitor", "pantalla", "display", "monitor led", "monitor gamer", "monitor curvo"}},
		{"telefono", []string{"telefono", "smartphone", "celular", "telefono ip", "telefono inalambrico", "movil"}},
		{"tablet", []string{"tablet", "ipad", "tableta", "tablet android"}},
		{"impresora", []string{"impresora", "multifuncional", "impresora laser", "impresora tinta", "plotter", "escaner"}},
		{"teclado", []string{"teclado", "keyboard", "teclado inalambrico", "teclado mecanico", "combo teclado mouse"}},
		{"mouse", []string{"mouse", "raton", "mouse inalambrico", "mouse gamer", "trackball"}},
		{"almacenamiento", []string{"disco duro", "ssd", "unidad estado solido", "nvme", "memoria usb", "disco externo"}},
		{"memoria", []string{"memoria ram", "ddr4", "ddr5", "sodimm", "memoria"}},
		{"redes", []string{"router", "switch", "access point", "wifi", "firewall", "cable utp"}},
		{"audio", []string{"audifonos", "diadema", "headset", "bocina", "microfono", "auriculares"}},
		{"energia", []string{"no break", "regulador", "ups", "supresor de picos", "bateria"}},
		{"procesador", []string{"procesador", "cpu", "ryzen", "intel core", "xeon"}},
		{"video", []string{"tarjeta de video", "gpu", "geforce", "radeon", "tarjeta grafica"}},
		{"camara", []string{"camara", "webcam", "camara ip", "videovigilancia", "dvr"}},
		{"proyector", []string{"proyector", "videoproyector", "pantalla de proyeccion"}},
		{"software", []string{"licencia", "antivirus", "office", "windows", "software"}},
	}}
}

// matching returns the categories with at least one term appearing as a
// substring of the normalized query, in declaration order.
func (km *KeywordMapper) matching(normalized string) []keywordCategory {
	if normalized == "" {
		return nil
	}
	var out []keywordCategory
	for _, c := range km.categories {
		for _, term := range c.terms {
			if strings.Contains(normalized, term) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// Expand returns the first topN terms of every matching category, deduplicated
// in first-seen order.
func (km *KeywordMapper) Expand(query string, topN int) []string {
	normalized := Normalize(query)
	seen := make(map[string]bool)
	var out []string
	for _, c := range km.matching(normalized) {
		for _, term := range firstN(c.terms, topN) {
			if seen[term] {
				continue
			}
			seen[term] = true
			out = append(out, term)
		}
	}
	return out
}

// Suggest returns related terms not already present in the query, longest
// first, capped at limit.
func (km *KeywordMapper) Suggest(query string, topN, limit int) []string {
	normalized := Normalize(query)
	seen := make(map[string]bool)
	var out []string
	for _, c := range km.matching(normalized) {
		for _, term := range firstN(c.terms, topN) {
			if seen[term] || strings.Contains(normalized, term) {
				continue
			}
			seen[term] = true
			out = append(out, term)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i]) > len(out[j])
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func firstN(terms []string, n int) []string {
	if n < 0 || n >= len(terms) {
		return terms
	}
	return terms[:n]
}
