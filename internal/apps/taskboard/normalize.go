package taskboard

import (
	"time"

	"github.com/MarcoPoloResearchLab/roomsync/internal/coerce"
	"github.com/MarcoPoloResearchLab/roomsync/internal/ids"
)

var (
	sectionValues  = []string{string(SectionToday), string(SectionMilestones), string(SectionCountdown)}
	priorityValues = []string{string(PriorityP1), string(PriorityP2), string(PriorityP3)}
)

// Normalizer rebuilds task boards. Tasks without an id or creation time are
// stamped from IDs and Clock, so the first pass is not deterministic but every
// later pass is.
type Normalizer struct {
	IDs   ids.Provider
	Clock func() time.Time
}

func (Normalizer) Default() State {
	return State{People: []string{}, Tasks: []Task{}}
}

func (n Normalizer) Normalize(raw any) State {
	object := coerce.Map(raw)
	people := normalizePeople(coerce.Slice(object["people"]))
	known := make(map[string]struct{}, len(people))
	for _, person := range people {
		known[person] = struct{}{}
	}

	rawTasks := coerce.Slice(object["tasks"])
	tasks := make([]Task, 0, len(rawTasks))
	seen := make(map[string]struct{}, len(rawTasks))
	for _, entry := range rawTasks {
		source := coerce.Map(entry)
		id := coerce.StringOr(source["id"], "")
		if id == "" {
			id = ids.MustNewID(n.IDs)
		}
		if _, duplicate := seen[id]; duplicate {
			continue
		}
		seen[id] = struct{}{}

		assignee := coerce.StringOr(source["assignee"], "")
		if _, ok := known[assignee]; !ok {
			assignee = ""
		}
		tasks = append(tasks, Task{
			ID:        id,
			Title:     coerce.String(source["title"]),
			Section:   Section(coerce.OneOf(source["section"], sectionValues, string(SectionToday))),
			Priority:  Priority(coerce.OneOf(source["priority"], priorityValues, string(PriorityP2))),
			Assignee:  assignee,
			Due:       coerce.String(source["due"]),
			Done:      coerce.Bool(source["done"]),
			CreatedAt: coerce.StringOr(source["createdAt"], n.now().UTC().Format(time.RFC3339Nano)),
		})
	}

	return State{
		EventDate: coerce.String(object["eventDate"]),
		People:    people,
		Tasks:     tasks,
	}
}

func (n Normalizer) now() time.Time {
	if n.Clock != nil {
		return n.Clock()
	}
	return time.Now()
}

func normalizePeople(raw []any) []string {
	people := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, entry := range raw {
		name := coerce.StringOr(entry, "")
		if name == "" {
			continue
		}
		if _, duplicate := seen[name]; duplicate {
			continue
		}
		seen[name] = struct{}{}
		people = append(people, name)
	}
	return people
}
