package planning

import (
	"sort"
	"time"
)

// WorkerEvents is what the event source hands the engine for one worker:
// worked events grouped by calendar day, and absences.
type WorkerEvents struct {
	Events   [][]Event `json:"events"`
	Absences []Event   `json:"absences"`
}

// GroupByDay splits events by the calendar day of their start date, keeping
// days in chronological order. Events inside a day keep their input order.
func GroupByDay(events []Event) [][]Event {
	byDay := make(map[time.Time][]Event)
	var days []time.Time
	for _, e := range events {
		d := time.Date(e.StartDate.Year(), e.StartDate.Month(), e.StartDate.Day(), 0, 0, 0, 0, e.StartDate.Location())
		if _, ok := byDay[d]; !ok {
			days = append(days, d)
		}
		byDay[d] = append(byDay[d], e)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	grouped := make([][]Event, 0, len(days))
	for _, d := range days {
		grouped = append(grouped, byDay[d])
	}
	return grouped
}

// SplitWorkerEvents separates paid events of a single worker into the
// day-grouped worked events and the absences.
func SplitWorkerEvents(events []Event) WorkerEvents {
	var worked, absences []Event
	for _, e := range events {
		if !e.IsPaid() {
			continue
		}
		switch e.Type {
		case EventAbsence:
			absences = append(absences, e)
		case EventIntervention, EventInternalHour:
			worked = append(worked, e)
		}
	}
	return WorkerEvents{Events: GroupByDay(worked), Absences: absences}
}

// ByWorker splits a flat event list per worker.
func ByWorker(events []Event) map[string]WorkerEvents {
	flat := make(map[string][]Event)
	for _, e := range events {
		flat[e.WorkerID] = append(flat[e.WorkerID], e)
	}
	result := make(map[string]WorkerEvents, len(flat))
	for id, evs := range flat {
		result[id] = SplitWorkerEvents(evs)
	}
	return result
}
