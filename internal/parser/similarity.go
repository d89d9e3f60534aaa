package parser

import (
	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// Similarity is the Jaro-Winkler similarity of the normalized forms of a and
// b, in [0,1].
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	return strutil.Similarity(na, nb, metrics.NewJaroWinkler())
}
