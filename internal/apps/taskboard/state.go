// Package taskboard models the event task board: prioritized tasks grouped by
// section, the people they are assigned to, and a countdown to the event day.
package taskboard

import (
	"time"

	"github.com/MarcoPoloResearchLab/roomsync/internal/collab"
	"github.com/MarcoPoloResearchLab/roomsync/internal/ids"
)

const (
	Namespace      = "event_todo"
	StorageKey     = "event-focus-board-v1"
	HistoryKey     = "event-focus-board-history-v1"
	DisplayNameKey = "event-focus-my-name"
	Debounce       = 180 * time.Millisecond

	// EventDateLayout is the calendar date format of State.EventDate.
	EventDateLayout = "2006-01-02"
)

type Section string

const (
	SectionToday      Section = "today"
	SectionMilestones Section = "milestones"
	SectionCountdown  Section = "countdown"
)

// Sections lists sections in display order.
var Sections = []Section{SectionToday, SectionMilestones, SectionCountdown}

type Priority string

const (
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
)

// Rank orders priorities, most urgent first.
func (p Priority) Rank() int {
	switch p {
	case PriorityP1:
		return 1
	case PriorityP3:
		return 3
	default:
		return 2
	}
}

type Task struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Section   Section  `json:"section"`
	Priority  Priority `json:"priority"`
	Assignee  string   `json:"assignee"`
	Due       string   `json:"due"`
	Done      bool     `json:"done"`
	CreatedAt string   `json:"createdAt"`
}

// State is the full task board document. Tasks are stored newest first.
type State struct {
	EventDate string   `json:"eventDate"`
	People    []string `json:"people"`
	Tasks     []Task   `json:"tasks"`
}

// Profile wires the task board into a collab controller.
func Profile() collab.Profile[State] {
	return collab.Profile[State]{
		Namespace:      Namespace,
		StorageKey:     StorageKey,
		HistoryKey:     HistoryKey,
		DisplayNameKey: DisplayNameKey,
		Debounce:       Debounce,
		Normalizer:     Normalizer{IDs: ids.NewUUIDProvider()},
	}
}
