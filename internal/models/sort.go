package models

import "sort"

// statusOrder is the list order of the status sort.
var statusOrder = map[TaskStatus]int{
	StatusCompleted:  0,
	StatusInProgress: 1,
	StatusCancelled:  2,
}

// SortByAddedAt orders tasks newest first. Ties keep their stored order.
func SortByAddedAt(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, errA := ParseTimestamp(tasks[i].AddedAt)
		b, errB := ParseTimestamp(tasks[j].AddedAt)
		if errA != nil || errB != nil {
			return tasks[i].AddedAt > tasks[j].AddedAt
		}
		return a.After(b)
	})
}

// SortByStatus groups tasks as Completed, In Progress, Cancelled. Ties keep their stored order.
func SortByStatus(tasks []Task) {
	rank := func(s TaskStatus) int {
		if r, ok := statusOrder[s]; ok {
			return r
		}
		return len(statusOrder)
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return rank(tasks[i].Status) < rank(tasks[j].Status)
	})
}
