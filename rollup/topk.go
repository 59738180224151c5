package rollup

import (
	"sort"

	"clientpulse/api/models"
)

// Counter counts values and remembers the order in which each value was first seen.
// Ranking is by count descending with first-seen order breaking ties.
type Counter struct {
	index   map[string]int
	entries []models.RankedCount
}

func NewCounter() *Counter {
	return &Counter{index: make(map[string]int)}
}

func (c *Counter) Add(value string, n int64) {
	if i, ok := c.index[value]; ok {
		c.entries[i].Count += n
		return
	}
	c.index[value] = len(c.entries)
	c.entries = append(c.entries, models.RankedCount{Value: value, Count: n})
}

// Top returns at most k entries. The result is never nil.
func (c *Counter) Top(k int) []models.RankedCount {
	ranked := make([]models.RankedCount, len(c.entries))
	copy(ranked, c.entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
