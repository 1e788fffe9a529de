package locker

import "sort"

// Conditions are stored as a flat list; groups are derived on read by
// partitioning on GroupPriority. Groups are ordered by ascending priority
// value and members keep their original flat-list order, so the
// (groupIndex, conditionIndex) pair addresses exactly one condition.

func groupPriorities(conds []Condition) []uint64 {
	seen := make(map[uint64]struct{}, len(conds))
	priorities := make([]uint64, 0, len(conds))
	for _, c := range conds {
		if _, ok := seen[c.GroupPriority]; ok {
			continue
		}
		seen[c.GroupPriority] = struct{}{}
		priorities = append(priorities, c.GroupPriority)
	}
	sort.Slice(priorities, func(i, j int) bool { return priorities[i] < priorities[j] })
	return priorities
}

// GroupConditions returns the priority-grouped view over a flat condition
// list. The result is a fresh partition; mutating it does not affect the
// stored conditions.
func GroupConditions(conds []Condition) [][]Condition {
	priorities := groupPriorities(conds)
	rank := make(map[uint64]int, len(priorities))
	for i, p := range priorities {
		rank[p] = i
	}
	groups := make([][]Condition, len(priorities))
	for _, c := range conds {
		i := rank[c.GroupPriority]
		groups[i] = append(groups[i], c.Clone())
	}
	return groups
}

// conditionAt resolves the two-level address against the flat list without
// materializing every group.
func conditionAt(conds []Condition, groupIndex, conditionIndex int) (Condition, error) {
	if groupIndex < 0 || conditionIndex < 0 {
		return Condition{}, ErrConditionOutOfRange
	}
	priorities := groupPriorities(conds)
	if groupIndex >= len(priorities) {
		return Condition{}, ErrConditionOutOfRange
	}
	priority := priorities[groupIndex]
	seen := 0
	for _, c := range conds {
		if c.GroupPriority != priority {
			continue
		}
		if seen == conditionIndex {
			return c.Clone(), nil
		}
		seen++
	}
	return Condition{}, ErrConditionOutOfRange
}
