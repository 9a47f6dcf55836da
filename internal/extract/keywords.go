package extract

import (
	"sort"
	"strings"
)

// stopWords is the fixed list removed before ranking keywords.
var stopWords = toSet(`a about above after again against all am an and any are as at be because been
before being below between both but by can could did do does doing down during each few for from
further had has have having he her here hers herself him himself his how i if in into is it its
itself just let me more most my myself no nor not now of off on once only or other our ours
ourselves out over own same she should so some such than that the their theirs them themselves
then there these they this those through to too under until up very was we were what when where
which while who whom why will with would you your yours yourself yourselves also via per etc
us may must well please apply send join contact looking hiring need needed new job jobs
position role vacancy required requirements`)

func toSet(words string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(words) {
		set[w] = struct{}{}
	}
	return set
}

// Keywords lower-cases text, strips punctuation, drops stop words and
// returns the topN most frequent remaining tokens. Ties keep first-seen order.
func Keywords(text string, topN int) []string {
	if topN <= 0 {
		return nil
	}

	counts := make(map[string]int)
	var order []string
	for _, tok := range wordSplit.Split(strings.ToLower(text), -1) {
		if tok == "" {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if counts[tok] == 0 {
			order = append(order, tok)
		}
		counts[tok]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > topN {
		order = order[:topN]
	}
	return order
}
