package aggregate

import "sort"

// Bucket maps a composite key or period label to an accumulated total.
type Bucket map[string]float64

// Sum returns the total over all keys.
func (b Bucket) Sum() float64 {
	var total float64
	for _, v := range b {
		total += v
	}
	return total
}

// Keys returns the bucket keys sorted ascending.
func (b Bucket) Keys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Accumulate sums value per composite key built from keyFields.
func Accumulate(records []Record, keyFields []Field, value ValueField) Bucket {
	bucket := make(Bucket)
	for _, r := range records {
		bucket[CompositeKey(r, keyFields)] += r.Value(value)
	}
	return bucket
}

// Group is one output row of a grouping: the first record seen for the key
// plus the accumulated total of every record sharing it.
type Group struct {
	Key            string  `json:"key"`
	Representative Record  `json:"representative"`
	Total          float64 `json:"total"`
	Count          int     `json:"count"`
}

// GroupRecords groups records by composite key in first-seen order. The first
// record of each key supplies the representative fields; later records only
// contribute to Total and Count.
func GroupRecords(records []Record, keyFields []Field, value ValueField) []Group {
	index := make(map[string]int)
	groups := make([]Group, 0)
	for _, r := range records {
		key := CompositeKey(r, keyFields)
		i, ok := index[key]
		if !ok {
			index[key] = len(groups)
			groups = append(groups, Group{Key: key, Representative: r})
			i = len(groups) - 1
		}
		groups[i].Total += r.Value(value)
		groups[i].Count++
	}
	return groups
}

// Totals flattens groups back into a Bucket.
func Totals(groups []Group) Bucket {
	bucket := make(Bucket, len(groups))
	for _, g := range groups {
		bucket[g.Key] += g.Total
	}
	return bucket
}

// KeyTotal is one ranked entry.
type KeyTotal struct {
	Key   string  `json:"key"`
	Total float64 `json:"total"`
}

// Rank orders bucket entries by descending total, ties broken by key. A limit
// of zero or less keeps every entry.
func Rank(bucket Bucket, limit int) []KeyTotal {
	ranked := make([]KeyTotal, 0, len(bucket))
	for k, v := range bucket {
		ranked = append(ranked, KeyTotal{Key: k, Total: v})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Total != ranked[j].Total {
			return ranked[i].Total > ranked[j].Total
		}
		return ranked[i].Key < ranked[j].Key
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
