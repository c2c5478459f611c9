package orchestrator

import (
	"strings"

	"github.com/shubhsaxena/catalog-search/internal/config"
)

var separatorStripper = strings.NewReplacer(" ", "", "-", "", "_", "")

// PartNumberClassifier decides whether a query looks like a distributor part
// number and produces the spellings worth trying against the price and
// availability endpoint.
type PartNumberClassifier struct {
	minLength    int
	maxVariants  int
	requireDigit bool
}

func NewPartNumberClassifier(cfg config.SKUConfig) *PartNumberClassifier {
	return &PartNumberClassifier{
		minLength:    cfg.MinLength,
		maxVariants:  cfg.MaxVariants,
		requireDigit: cfg.RequireDigit,
	}
}

// IsCandidate is true when no vendor filter is set and the query, with
// spaces, dashes and underscores removed, is at least minLength ASCII
// letters and digits.
func (c *PartNumberClassifier) IsCandidate(query, vendor string) bool {
	if strings.TrimSpace(vendor) != "" {
		return false
	}
	stripped := separatorStripper.Replace(strings.TrimSpace(query))
	if len(stripped) < c.minLength {
		return false
	}

	hasDigit := false
	for i := 0; i < len(stripped); i++ {
		b := stripped[i]
		switch {
		case b >= '0' && b <= '9':
			hasDigit = true
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z':
		default:
			return false
		}
	}
	return hasDigit || !c.requireDigit
}

// Variants returns up to maxVariants distinct uppercased spellings of query:
// as typed, spaces to dashes, dashes removed, spaces removed, underscores to
// dashes and underscores removed.
func (c *PartNumberClassifier) Variants(query string) []string {
	base := strings.ToUpper(strings.TrimSpace(query))
	if base == "" {
		return nil
	}

	candidates := []string{
		base,
		strings.ReplaceAll(base, " ", "-"),
		strings.ReplaceAll(base, "-", ""),
		strings.ReplaceAll(base, " ", ""),
		strings.ReplaceAll(base, "_", "-"),
		strings.ReplaceAll(base, "_", ""),
	}

	seen := make(map[string]bool, len(candidates))
	out := make([]string, 0, c.maxVariants)
	for _, v := range candidates {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
		if len(out) == c.maxVariants {
			break
		}
	}
	return out
}
