package taskboard

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/roomsync/internal/ids"
)

var (
	ErrTitleMissing   = errors.New("taskboard: task title is required")
	ErrTaskNotFound   = errors.New("taskboard: task not found")
	ErrInvalidDate    = errors.New("taskboard: event date must be YYYY-MM-DD")
	ErrPersonNotFound = errors.New("taskboard: person not found")
)

// View filters the visible tasks.
type View string

const (
	ViewAll        View = "all"
	ViewMine       View = "mine"
	ViewUnassigned View = "unassigned"
	ViewOpenP1     View = "openP1"
)

// NewTask is the input of AddTask.
type NewTask struct {
	Title    string
	Section  Section
	Priority Priority
	Assignee string
	Due      string
}

// AddTask puts a task at the top of the board and registers its assignee.
func (s *State) AddTask(input NewTask, idProvider ids.Provider, now time.Time) (Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return Task{}, ErrTitleMissing
	}
	section := input.Section
	if !validSection(section) {
		section = SectionToday
	}
	priority := input.Priority
	switch priority {
	case PriorityP1, PriorityP2, PriorityP3:
	default:
		priority = PriorityP2
	}
	task := Task{
		ID:        ids.MustNewID(idProvider),
		Title:     title,
		Section:   section,
		Priority:  priority,
		Assignee:  strings.TrimSpace(input.Assignee),
		Due:       strings.TrimSpace(input.Due),
		CreatedAt: now.UTC().Format(time.RFC3339Nano),
	}
	s.Tasks = append([]Task{task}, s.Tasks...)
	s.AddPerson(task.Assignee)
	return task, nil
}

// ToggleDone flips a task between open and done.
func (s *State) ToggleDone(taskID string) error {
	task, err := s.task(taskID)
	if err != nil {
		return err
	}
	task.Done = !task.Done
	return nil
}

func (s *State) DeleteTask(taskID string) error {
	for index := range s.Tasks {
		if s.Tasks[index].ID == taskID {
			s.Tasks = append(s.Tasks[:index], s.Tasks[index+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
}

// AssignTask sets or clears a task's assignee, registering new people.
func (s *State) AssignTask(taskID, assignee string) error {
	task, err := s.task(taskID)
	if err != nil {
		return err
	}
	task.Assignee = strings.TrimSpace(assignee)
	s.AddPerson(task.Assignee)
	return nil
}

// SetEventDate accepts YYYY-MM-DD or "" to clear the date.
func (s *State) SetEventDate(date string) error {
	date = strings.TrimSpace(date)
	if date != "" {
		if _, err := time.Parse(EventDateLayout, date); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidDate, date)
		}
	}
	s.EventDate = date
	return nil
}

// AddPerson registers a name once. Blank names are ignored.
func (s *State) AddPerson(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	for _, person := range s.People {
		if person == name {
			return
		}
	}
	s.People = append(s.People, name)
}

// RemovePerson drops a person and unassigns their tasks.
func (s *State) RemovePerson(name string) error {
	for index, person := range s.People {
		if person != name {
			continue
		}
		s.People = append(s.People[:index], s.People[index+1:]...)
		for taskIndex := range s.Tasks {
			if s.Tasks[taskIndex].Assignee == name {
				s.Tasks[taskIndex].Assignee = ""
			}
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrPersonNotFound, name)
}

// VisibleTasks applies view for the person named me. "mine" matches
// assignees case-insensitively and is empty without a name.
func (s State) VisibleTasks(view View, me string) []Task {
	me = strings.TrimSpace(me)
	var visible []Task
	for _, task := range s.Tasks {
		switch view {
		case ViewMine:
			if me == "" || !strings.EqualFold(task.Assignee, me) {
				continue
			}
		case ViewUnassigned:
			if task.Assignee != "" {
				continue
			}
		case ViewOpenP1:
			if task.Priority != PriorityP1 || task.Done {
				continue
			}
		}
		visible = append(visible, task)
	}
	return visible
}

// SectionTasks narrows VisibleTasks to one section.
func (s State) SectionTasks(view View, me string, section Section) []Task {
	var tasks []Task
	for _, task := range s.VisibleTasks(view, me) {
		if task.Section == section {
			tasks = append(tasks, task)
		}
	}
	return tasks
}

// Spotlight returns the most urgent open task; ties keep board order.
func (s State) Spotlight() (Task, bool) {
	open := make([]Task, 0, len(s.Tasks))
	for _, task := range s.Tasks {
		if !task.Done {
			open = append(open, task)
		}
	}
	if len(open) == 0 {
		return Task{}, false
	}
	sort.SliceStable(open, func(i, j int) bool {
		return open[i].Priority.Rank() < open[j].Priority.Rank()
	})
	return open[0], true
}

// Countdown describes the distance to the event day, taken as noon local
// time on EventDate.
func (s State) Countdown(now time.Time) string {
	if s.EventDate == "" {
		return "Set an event date to unlock countdown focus."
	}
	eventDay, err := time.ParseInLocation(EventDateLayout, s.EventDate, now.Location())
	if err != nil {
		return "Set an event date to unlock countdown focus."
	}
	eventNoon := eventDay.Add(12 * time.Hour)
	days := int(math.Ceil(eventNoon.Sub(now).Hours() / 24))
	switch {
	case days > 1:
		return fmt.Sprintf("%d days to event day.", days)
	case days == 1:
		return "1 day to event day."
	case days == 0:
		return "Event day is today."
	default:
		return fmt.Sprintf("%d days since event day.", -days)
	}
}

func (s *State) task(taskID string) (*Task, error) {
	for index := range s.Tasks {
		if s.Tasks[index].ID == taskID {
			return &s.Tasks[index], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
}

func validSection(section Section) bool {
	for _, candidate := range Sections {
		if candidate == section {
			return true
		}
	}
	return false
}
