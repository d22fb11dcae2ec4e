// Package apps exposes the three roomsync applications behind one
// type-erased Session so commands can drive any of them.
package apps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/roomsync/internal/apps/seating"
	"github.com/MarcoPoloResearchLab/roomsync/internal/apps/taskboard"
	"github.com/MarcoPoloResearchLab/roomsync/internal/apps/workout"
	"github.com/MarcoPoloResearchLab/roomsync/internal/coerce"
	"github.com/MarcoPoloResearchLab/roomsync/internal/collab"
	"github.com/MarcoPoloResearchLab/roomsync/internal/localstore"
)

const (
	Seating   = "seating"
	Taskboard = "taskboard"
	Workout   = "workout"
)

var (
	// ErrUnknownApp indicates that no application carries the requested name.
	ErrUnknownApp = errors.New("apps: unknown application")
	// ErrExportUnsupported indicates that the application has no table export.
	ErrExportUnsupported = errors.New("apps: table export is not supported")
	ErrInvalidDocument   = errors.New("apps: document is not valid JSON")
)

// Names lists the registered applications.
func Names() []string {
	return []string{Seating, Taskboard, Workout}
}

// Namespace returns the relay namespace of an application.
func Namespace(name string) (string, error) {
	switch name {
	case Seating:
		return seating.Namespace, nil
	case Taskboard:
		return taskboard.Namespace, nil
	case Workout:
		return workout.Namespace, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownApp, name)
	}
}

// Session drives one application's controller without exposing its state type.
type Session interface {
	Name() string
	Connect(ctx context.Context, room string) error
	Close(ctx context.Context) error
	Connected() bool
	Room() string
	Status() string
	Summary() []string
	StateJSON() ([]byte, error)
	Import(payload []byte) error
	CreateSnapshot(ctx context.Context, label string) (collab.Snapshot, error)
	History() []collab.Snapshot
	RefreshHistory(ctx context.Context) error
	RestoreSnapshot(id string) error
	ClearHistory(ctx context.Context) error
	DescribeSnapshot(snapshot collab.Snapshot) string
	OnChange(fn func(source collab.ChangeSource)) func()
	ExportTableSetup(w io.Writer) error
}

// Open builds the named application's controller over store.
func Open(name string, store localstore.Store, options collab.Options, now func() time.Time) (Session, error) {
	if now == nil {
		now = time.Now
	}
	switch name {
	case Seating:
		return openSession(name, seating.Profile(), store, options, sessionHooks[seating.State]{
			summarize:   summarizeSeating,
			describe:    describeSeating,
			exportTable: seating.WriteTableSetupCSV,
		})
	case Taskboard:
		preferences := localstore.NewPreferences(store, taskboard.DisplayNameKey)
		return openSession(name, taskboard.Profile(), store, options, sessionHooks[taskboard.State]{
			summarize: func(state taskboard.State) []string {
				return summarizeTaskboard(state, preferences.DisplayName(), now())
			},
			describe: func(state taskboard.State) string {
				return fmt.Sprintf("%d tasks", len(state.Tasks))
			},
		})
	case Workout:
		return openSession(name, workout.Profile(), store, options, sessionHooks[workout.State]{
			summarize: summarizeWorkout,
			describe:  describeWorkout,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownApp, name)
	}
}

type sessionHooks[S any] struct {
	summarize   func(S) []string
	describe    func(S) string
	exportTable func(io.Writer, S) error
}

type controllerSession[S any] struct {
	name       string
	controller *collab.Controller[S]
	normalizer collab.Normalizer[S]
	hooks      sessionHooks[S]
}

func openSession[S any](name string, profile collab.Profile[S], store localstore.Store, options collab.Options, hooks sessionHooks[S]) (Session, error) {
	controller, err := collab.Open(profile, store, options)
	if err != nil {
		return nil, err
	}
	return &controllerSession[S]{
		name:       name,
		controller: controller,
		normalizer: profile.Normalizer,
		hooks:      hooks,
	}, nil
}

func (s *controllerSession[S]) Name() string { return s.name }

func (s *controllerSession[S]) Connect(ctx context.Context, room string) error {
	return s.controller.Connect(ctx, room)
}

func (s *controllerSession[S]) Close(ctx context.Context) error {
	return s.controller.Close(ctx)
}

func (s *controllerSession[S]) Connected() bool { return s.controller.Connected() }

func (s *controllerSession[S]) Room() string { return s.controller.Room().String() }

func (s *controllerSession[S]) Status() string { return s.controller.Status() }

func (s *controllerSession[S]) Summary() []string {
	return s.hooks.summarize(s.controller.State())
}

func (s *controllerSession[S]) StateJSON() ([]byte, error) {
	return json.MarshalIndent(s.controller.State(), "", "  ")
}

// Import replaces the state with a normalized JSON document.
func (s *controllerSession[S]) Import(payload []byte) error {
	if !json.Valid(payload) {
		return ErrInvalidDocument
	}
	s.controller.Replace(s.normalizer.Normalize(coerce.Decode(payload)))
	return nil
}

func (s *controllerSession[S]) CreateSnapshot(ctx context.Context, label string) (collab.Snapshot, error) {
	return s.controller.CreateSnapshot(ctx, label)
}

func (s *controllerSession[S]) History() []collab.Snapshot {
	return s.controller.History()
}

func (s *controllerSession[S]) RefreshHistory(ctx context.Context) error {
	return s.controller.RefreshHistory(ctx)
}

func (s *controllerSession[S]) RestoreSnapshot(id string) error {
	_, err := s.controller.RestoreSnapshot(id)
	return err
}

func (s *controllerSession[S]) ClearHistory(ctx context.Context) error {
	return s.controller.ClearHistory(ctx)
}

func (s *controllerSession[S]) DescribeSnapshot(snapshot collab.Snapshot) string {
	return s.hooks.describe(s.normalizer.Normalize(coerce.Decode(snapshot.Payload)))
}

func (s *controllerSession[S]) OnChange(fn func(source collab.ChangeSource)) func() {
	return s.controller.Subscribe(func(_ S, source collab.ChangeSource) {
		fn(source)
	})
}

func (s *controllerSession[S]) ExportTableSetup(w io.Writer) error {
	if s.hooks.exportTable == nil {
		return fmt.Errorf("%w: %s", ErrExportUnsupported, s.name)
	}
	return s.hooks.exportTable(w, s.controller.State())
}

func summarizeSeating(state seating.State) []string {
	lines := make([]string, 0, 3)
	for _, room := range []seating.RoomKind{seating.RoomMain, seating.RoomOverflow} {
		tables := state.Tables(room)
		seats, filled := 0, 0
		for _, table := range tables {
			seats += len(table.Assignments)
			for _, assignment := range table.Assignments {
				if assignment != 0 {
					filled++
				}
			}
		}
		lines = append(lines, fmt.Sprintf("%s: %d tables, %d/%d seats filled", room.Label(), len(tables), filled, seats))
	}
	lines = append(lines, fmt.Sprintf("Guests: %d (%d unseated)", len(state.Guests), len(state.UnseatedGuests())))
	return lines
}

func describeSeating(state seating.State) string {
	return fmt.Sprintf("%d tables, %d guests", len(state.MainTables)+len(state.OverflowTables), len(state.Guests))
}

func summarizeTaskboard(state taskboard.State, me string, now time.Time) []string {
	open := 0
	for _, task := range state.Tasks {
		if !task.Done {
			open++
		}
	}
	lines := []string{
		state.Countdown(now),
		fmt.Sprintf("Open tasks: %d of %d", open, len(state.Tasks)),
	}
	if spotlight, ok := state.Spotlight(); ok {
		lines = append(lines, fmt.Sprintf("Spotlight: [%s] %s", spotlight.Priority, spotlight.Title))
	}
	if me != "" {
		lines = append(lines, fmt.Sprintf("Assigned to %s: %d", me, len(state.VisibleTasks(taskboard.ViewMine, me))))
	}
	return lines
}

func summarizeWorkout(state workout.State) []string {
	if state.WorkoutType == "" {
		return []string{"Workout type: not chosen"}
	}
	lines := []string{"Workout type: " + strings.ToUpper(string(state.WorkoutType))}
	for _, line := range state.Summary() {
		lines = append(lines, line.String())
	}
	names := make([]string, 0, len(workout.CoreExercises()))
	for _, exercise := range workout.CoreExercises() {
		names = append(names, exercise.Name)
	}
	return append(lines, "Core options: "+strings.Join(names, ", "))
}

func describeWorkout(state workout.State) string {
	if state.WorkoutType == "" {
		return "no workout type"
	}
	return fmt.Sprintf("%s, %d/%d sections", state.WorkoutType, len(state.SelectedBySection), len(workout.Sections(state.WorkoutType)))
}
