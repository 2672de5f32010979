package model

import (
	"sort"
	"strings"
)

// Combination binds matrix axis names to one value each.
type Combination map[string]string

// String renders the combination as "a=1,b=2", sorted by axis name.
func (c Combination) String() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+c[k])
	}
	return strings.Join(parts, ",")
}

// Axis is one dimension of a matrix job.
type Axis struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Combinations returns the cartesian product of the axes. The first axis varies slowest.
// No axes yields no combinations.
func Combinations(axes []Axis) []Combination {
	if len(axes) == 0 {
		return nil
	}
	result := []Combination{{}}
	for _, axis := range axes {
		next := make([]Combination, 0, len(result)*len(axis.Values))
		for _, prefix := range result {
			for _, value := range axis.Values {
				c := make(Combination, len(prefix)+1)
				for k, v := range prefix {
					c[k] = v
				}
				c[axis.Name] = value
				next = append(next, c)
			}
		}
		result = next
	}
	return result
}
