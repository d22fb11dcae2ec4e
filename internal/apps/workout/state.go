// Package workout models the workout builder: pick a workout type, one
// exercise per catalog section, and optional core supersets per exercise.
package workout

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/roomsync/internal/coerce"
	"github.com/MarcoPoloResearchLab/roomsync/internal/collab"
)

const (
	Namespace  = "gym_builder"
	StorageKey = "gym-builder-workout-v1"
	HistoryKey = "gym-builder-history-v1"
	Debounce   = 200 * time.Millisecond
)

type Type string

const (
	TypeUpper  Type = "upper"
	TypeLower  Type = "lower"
	TypeCardio Type = "cardio"
)

var typeValues = []string{string(TypeUpper), string(TypeLower), string(TypeCardio)}

var (
	ErrUnknownType     = errors.New("workout: unknown workout type")
	ErrNoWorkoutType   = errors.New("workout: choose a workout type first")
	ErrUnknownSection  = errors.New("workout: unknown section")
	ErrUnknownExercise = errors.New("workout: unknown exercise")
	ErrNotSelected     = errors.New("workout: exercise is not selected")
)

// State is the workout builder document. An empty WorkoutType means none chosen.
type State struct {
	WorkoutType                 Type                `json:"workoutType"`
	SelectedBySection           map[string]Exercise `json:"selectedBySection"`
	CoreSupersetsByMainExercise map[string][]string `json:"coreSupersetsByMainExercise"`
}

// MainExerciseKey identifies a selected exercise for superset bookkeeping.
func MainExerciseKey(sectionKey, exerciseName string) string {
	return sectionKey + ":" + exerciseName
}

// Profile wires the workout builder into a collab controller.
func Profile() collab.Profile[State] {
	return collab.Profile[State]{
		Namespace:  Namespace,
		StorageKey: StorageKey,
		HistoryKey: HistoryKey,
		Debounce:   Debounce,
		Normalizer: Normalizer{},
	}
}

// Normalizer keeps only selections that exist in the catalog for the chosen
// type, and only supersets attached to a current selection.
type Normalizer struct{}

func (Normalizer) Default() State {
	return State{
		SelectedBySection:           map[string]Exercise{},
		CoreSupersetsByMainExercise: map[string][]string{},
	}
}

func (n Normalizer) Normalize(raw any) State {
	object := coerce.Map(raw)
	state := n.Default()
	state.WorkoutType = Type(coerce.OneOf(object["workoutType"], typeValues, ""))

	selections := coerce.Map(object["selectedBySection"])
	selectedKeys := make(map[string]struct{})
	for _, section := range Sections(state.WorkoutType) {
		entry := selections[section.Key]
		name := coerce.StringOr(coerce.Map(entry)["name"], "")
		if text, ok := entry.(string); ok {
			name = strings.TrimSpace(text)
		}
		exercise, ok := findExercise(section, name)
		if !ok {
			continue
		}
		state.SelectedBySection[section.Key] = exercise
		selectedKeys[MainExerciseKey(section.Key, exercise.Name)] = struct{}{}
	}

	for key, rawCore := range coerce.Map(object["coreSupersetsByMainExercise"]) {
		if _, ok := selectedKeys[key]; !ok {
			continue
		}
		var names []string
		seen := make(map[string]struct{})
		for _, item := range coerce.Slice(rawCore) {
			name, _ := item.(string)
			if !isCoreExercise(name) {
				continue
			}
			if _, duplicate := seen[name]; duplicate {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
		if len(names) > 0 {
			state.CoreSupersetsByMainExercise[key] = names
		}
	}
	return state
}

// SetWorkoutType switches type and clears every selection.
func (s *State) SetWorkoutType(workoutType Type) error {
	if _, ok := catalog[workoutType]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, workoutType)
	}
	s.WorkoutType = workoutType
	s.SelectedBySection = map[string]Exercise{}
	s.CoreSupersetsByMainExercise = map[string][]string{}
	return nil
}

// SelectExercise picks the exercise for a section of the current type.
// Supersets of the replaced exercise are dropped.
func (s *State) SelectExercise(sectionKey, exerciseName string) error {
	if s.WorkoutType == "" {
		return ErrNoWorkoutType
	}
	section, ok := findSection(s.WorkoutType, sectionKey)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSection, sectionKey)
	}
	exercise, ok := findExercise(section, exerciseName)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownExercise, exerciseName)
	}
	if s.SelectedBySection == nil {
		s.SelectedBySection = map[string]Exercise{}
	}
	if previous, ok := s.SelectedBySection[sectionKey]; ok && previous.Name != exercise.Name {
		delete(s.CoreSupersetsByMainExercise, MainExerciseKey(sectionKey, previous.Name))
	}
	s.SelectedBySection[sectionKey] = exercise
	return nil
}

// ToggleCoreExercise adds or removes a core superset for a selected exercise.
func (s *State) ToggleCoreExercise(mainExerciseKey, coreExerciseName string) error {
	if !isCoreExercise(coreExerciseName) {
		return fmt.Errorf("%w: %q", ErrUnknownExercise, coreExerciseName)
	}
	if !s.isSelectedKey(mainExerciseKey) {
		return fmt.Errorf("%w: %q", ErrNotSelected, mainExerciseKey)
	}
	if s.CoreSupersetsByMainExercise == nil {
		s.CoreSupersetsByMainExercise = map[string][]string{}
	}
	current := s.CoreSupersetsByMainExercise[mainExerciseKey]
	next := make([]string, 0, len(current)+1)
	removed := false
	for _, name := range current {
		if name == coreExerciseName {
			removed = true
			continue
		}
		next = append(next, name)
	}
	if !removed {
		next = append(next, coreExerciseName)
	}
	if len(next) == 0 {
		delete(s.CoreSupersetsByMainExercise, mainExerciseKey)
		return nil
	}
	s.CoreSupersetsByMainExercise[mainExerciseKey] = next
	return nil
}

// ResetSelections clears selections but keeps the workout type.
func (s *State) ResetSelections() {
	s.SelectedBySection = map[string]Exercise{}
	s.CoreSupersetsByMainExercise = map[string][]string{}
}

// CanContinue reports whether every section of the current type has a selection.
func (s State) CanContinue() bool {
	sections := Sections(s.WorkoutType)
	if len(sections) == 0 {
		return false
	}
	for _, section := range sections {
		if _, ok := s.SelectedBySection[section.Key]; !ok {
			return false
		}
	}
	return true
}

// SummaryLine describes one section of the built workout.
type SummaryLine struct {
	Section  string
	Exercise string
	Core     []string
}

// Summary lists each section of the current type with its selection.
func (s State) Summary() []SummaryLine {
	sections := Sections(s.WorkoutType)
	lines := make([]SummaryLine, 0, len(sections))
	for _, section := range sections {
		line := SummaryLine{Section: section.Label, Exercise: "Not selected"}
		if selected, ok := s.SelectedBySection[section.Key]; ok {
			line.Exercise = selected.Name
			line.Core = append([]string(nil), s.CoreSupersetsByMainExercise[MainExerciseKey(section.Key, selected.Name)]...)
		}
		lines = append(lines, line)
	}
	return lines
}

// String renders a summary line the way the summary panel does.
func (l SummaryLine) String() string {
	if len(l.Core) == 0 {
		return fmt.Sprintf("%s: %s", l.Section, l.Exercise)
	}
	return fmt.Sprintf("%s: %s | Core: %s", l.Section, l.Exercise, strings.Join(l.Core, ", "))
}

func (s State) isSelectedKey(key string) bool {
	for sectionKey, exercise := range s.SelectedBySection {
		if MainExerciseKey(sectionKey, exercise.Name) == key {
			return true
		}
	}
	return false
}
