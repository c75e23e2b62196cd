package query

import "strings"

// TitleSimilarity measures near-duplicate titles with Jaccard similarity over
// character bigrams. It is cheap, order-insensitive within words, and catches
// the "Will X happen?" / "Will X happen" near-clones the upstream catalog is
// full of.
func TitleSimilarity(a, b string) float64 {
	ba := bigrams(strings.ToLower(a))
	bb := bigrams(strings.ToLower(b))
	if len(ba) == 0 || len(bb) == 0 {
		if len(ba) == len(bb) {
			return 1
		}
		return 0
	}

	inter := 0
	for g, n := range ba {
		if m, ok := bb[g]; ok {
			inter += min(n, m)
		}
	}
	union := 0
	for _, n := range ba {
		union += n
	}
	for _, n := range bb {
		union += n
	}
	union -= inter

	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}

func bigrams(s string) map[string]int {
	runes := []rune(s)
	if len(runes) < 2 {
		if len(runes) == 0 {
			return nil
		}
		return map[string]int{string(runes): 1}
	}
	grams := make(map[string]int, len(runes)-1)
	for i := 0; i+1 < len(runes); i++ {
		grams[string(runes[i:i+2])]++
	}
	return grams
}
