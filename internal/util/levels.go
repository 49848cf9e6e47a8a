package util

import (
	"fmt"
	"strings"
)

// CycleError reports the nodes left over once every acyclic node has been
// ordered. Callers wrap it in their own error type.
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle among: %s", strings.Join(e.Nodes, ", "))
}

// Levels groups ids into topological levels: level 0 has no dependencies,
// level n depends only on earlier levels. Within a level ids keep their
// input order, so the result is deterministic. Dependencies on ids outside
// the input are ignored; callers validate those separately.
func Levels(ids []string, deps func(id string) []string) ([][]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	inDegree := make(map[string]int, len(ids))
	dependents := make(map[string][]string, len(ids))
	for _, id := range ids {
		seen := make(map[string]bool)
		for _, dep := range deps(id) {
			if _, ok := index[dep]; !ok || seen[dep] {
				continue
			}
			seen[dep] = true
			inDegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var current []string
	for _, id := range ids {
		if inDegree[id] == 0 {
			current = append(current, id)
		}
	}

	var levels [][]string
	placed := 0
	for len(current) > 0 {
		levels = append(levels, current)
		placed += len(current)

		var next []string
		for _, id := range current {
			for _, dependent := range dependents[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		sortByIndex(next, index)
		current = next
	}

	if placed != len(ids) {
		var stuck []string
		for _, id := range ids {
			if inDegree[id] > 0 {
				stuck = append(stuck, id)
			}
		}
		return levels, &CycleError{Nodes: stuck}
	}
	return levels, nil
}

// Flatten concatenates levels into a single order.
func Flatten(levels [][]string) []string {
	var out []string
	for _, level := range levels {
		out = append(out, level...)
	}
	return out
}

// sortByIndex orders ids by their input position using insertion sort;
// levels are small.
func sortByIndex(ids []string, index map[string]int) {
	for i := 1; i < len(ids); i++ {
		key := ids[i]
		j := i - 1
		for j >= 0 && index[ids[j]] > index[key] {
			ids[j+1] = ids[j]
			j--
		}
		ids[j+1] = key
	}
}
