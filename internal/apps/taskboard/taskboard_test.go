package taskboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"
)

type sequenceIDs struct {
	next int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.next++
	return fmt.Sprintf("task-%d", s.next), nil
}

var fixedNow = time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)

func testNormalizer() Normalizer {
	return Normalizer{IDs: &sequenceIDs{}, Clock: func() time.Time { return fixedNow }}
}

func decode(testContext *testing.T, document string) any {
	testContext.Helper()
	var raw any
	if err := json.Unmarshal([]byte(document), &raw); err != nil {
		testContext.Fatalf("invalid document: %v", err)
	}
	return raw
}

func reencode(testContext *testing.T, state State) any {
	testContext.Helper()
	encoded, err := json.Marshal(state)
	if err != nil {
		testContext.Fatalf("marshal failed: %v", err)
	}
	return decode(testContext, string(encoded))
}

func TestNormalizeIsTotalAndIdempotent(testContext *testing.T) {
	documents := []string{
		`{}`, `null`, `"board"`, `[{"id":"x"}]`,
		`{"eventDate":20250101,"people":["Ana"," Ana ","",null,{"x":1}],"tasks":{"id":"1"}}`,
		`{"people":["Ana"],"tasks":[
			{"id":"a","title":"Book venue","section":"milestones","priority":"P1","assignee":"Ana","done":1},
			{"title":"No id","section":"later","priority":"urgent","assignee":"Ghost"},
			{"id":"a","title":"duplicate"},
			"not a task"]}`,
	}
	normalizer := testNormalizer()
	for _, document := range documents {
		first := normalizer.Normalize(decode(testContext, document))
		if first.People == nil || first.Tasks == nil {
			testContext.Fatalf("collections must be non-nil for %s", document)
		}
		second := normalizer.Normalize(reencode(testContext, first))
		if !reflect.DeepEqual(first, second) {
			testContext.Fatalf("not idempotent for %s:\n%+v\n%+v", document, first, second)
		}
	}
}

func TestNormalizeEnforcesFieldRules(testContext *testing.T) {
	state := testNormalizer().Normalize(decode(testContext, `{"people":["Ana"," Ana ","Ben"],"tasks":[
		{"id":"a","title":"Book venue","section":"milestones","priority":"P1","assignee":"Ana","done":1},
		{"title":"No id","section":"later","priority":"urgent","assignee":"Ghost"},
		{"id":"a","title":"duplicate"}]}`))

	if !reflect.DeepEqual(state.People, []string{"Ana", "Ben"}) {
		testContext.Fatalf("expected trimmed unique people, got %v", state.People)
	}
	if len(state.Tasks) != 2 {
		testContext.Fatalf("expected duplicate task dropped, got %d", len(state.Tasks))
	}
	first := state.Tasks[0]
	if first.Section != SectionMilestones || first.Priority != PriorityP1 || !first.Done || first.Assignee != "Ana" {
		testContext.Fatalf("unexpected first task %+v", first)
	}
	second := state.Tasks[1]
	if second.ID != "task-1" || second.Section != SectionToday || second.Priority != PriorityP2 {
		testContext.Fatalf("expected defaults on second task, got %+v", second)
	}
	if second.Assignee != "" {
		testContext.Fatalf("assignee outside people must be cleared, got %q", second.Assignee)
	}
	if second.CreatedAt != fixedNow.Format(time.RFC3339Nano) {
		testContext.Fatalf("expected createdAt stamped from clock, got %q", second.CreatedAt)
	}
}

func TestAddTaskPrependsAndRegistersAssignee(testContext *testing.T) {
	state := testNormalizer().Default()
	idProvider := &sequenceIDs{}
	first, err := state.AddTask(NewTask{Title: " Order cake ", Assignee: "Cleo", Priority: "P9", Section: "nowhere"}, idProvider, fixedNow)
	if err != nil {
		testContext.Fatalf("add failed: %v", err)
	}
	second, _ := state.AddTask(NewTask{Title: "Send invites", Assignee: "Cleo", Priority: PriorityP1, Section: SectionCountdown}, idProvider, fixedNow)

	if state.Tasks[0].ID != second.ID || state.Tasks[1].ID != first.ID {
		testContext.Fatalf("new tasks must be prepended")
	}
	if first.Title != "Order cake" || first.Priority != PriorityP2 || first.Section != SectionToday {
		testContext.Fatalf("unexpected defaults %+v", first)
	}
	if !reflect.DeepEqual(state.People, []string{"Cleo"}) {
		testContext.Fatalf("expected assignee registered once, got %v", state.People)
	}
	if _, err := state.AddTask(NewTask{Title: "  "}, idProvider, fixedNow); !errors.Is(err, ErrTitleMissing) {
		testContext.Fatalf("expected missing title error, got %v", err)
	}
}

func TestTaskEdits(testContext *testing.T) {
	state := testNormalizer().Default()
	idProvider := &sequenceIDs{}
	task, _ := state.AddTask(NewTask{Title: "Hire band", Assignee: "Dev"}, idProvider, fixedNow)

	if err := state.ToggleDone(task.ID); err != nil || !state.Tasks[0].Done {
		testContext.Fatalf("toggle failed: %v", err)
	}
	if err := state.AssignTask(task.ID, "Eli"); err != nil {
		testContext.Fatalf("assign failed: %v", err)
	}
	if err := state.RemovePerson("Eli"); err != nil {
		testContext.Fatalf("remove person failed: %v", err)
	}
	if state.Tasks[0].Assignee != "" {
		testContext.Fatalf("removing a person must unassign their tasks")
	}
	if err := state.RemovePerson("Nobody"); !errors.Is(err, ErrPersonNotFound) {
		testContext.Fatalf("expected person not found, got %v", err)
	}
	if err := state.DeleteTask(task.ID); err != nil || len(state.Tasks) != 0 {
		testContext.Fatalf("delete failed: %v", err)
	}
	if err := state.ToggleDone(task.ID); !errors.Is(err, ErrTaskNotFound) {
		testContext.Fatalf("expected task not found, got %v", err)
	}
	if err := state.SetEventDate("June 5th"); !errors.Is(err, ErrInvalidDate) {
		testContext.Fatalf("expected invalid date, got %v", err)
	}
	if err := state.SetEventDate("2025-06-05"); err != nil || state.EventDate != "2025-06-05" {
		testContext.Fatalf("set date failed: %v", err)
	}
}

func TestViewsAndSpotlight(testContext *testing.T) {
	state := testNormalizer().Normalize(decode(testContext, `{"people":["Ana","Ben"],"tasks":[
		{"id":"1","title":"P3 open","priority":"P3","assignee":"ana"},
		{"id":"2","title":"P1 done","priority":"P1","done":true,"assignee":"Ana"},
		{"id":"3","title":"P2 open","priority":"P2","section":"milestones","assignee":"Ben"},
		{"id":"4","title":"P1 open","priority":"P1"},
		{"id":"5","title":"P1 later","priority":"P1","assignee":"Ana"}]}`))

	ids := func(tasks []Task) []string {
		var out []string
		for _, task := range tasks {
			out = append(out, task.ID)
		}
		return out
	}
	if got := ids(state.VisibleTasks(ViewMine, "ANA")); !reflect.DeepEqual(got, []string{"2", "5"}) {
		testContext.Fatalf("unexpected mine view %v", got)
	}
	if got := state.VisibleTasks(ViewMine, ""); len(got) != 0 {
		testContext.Fatalf("mine view without a name must be empty")
	}
	if got := ids(state.VisibleTasks(ViewUnassigned, "")); !reflect.DeepEqual(got, []string{"1", "4"}) {
		testContext.Fatalf("unexpected unassigned view %v", got)
	}
	if got := ids(state.VisibleTasks(ViewOpenP1, "")); !reflect.DeepEqual(got, []string{"4", "5"}) {
		testContext.Fatalf("unexpected openP1 view %v", got)
	}
	if got := ids(state.SectionTasks(ViewAll, "", SectionMilestones)); !reflect.DeepEqual(got, []string{"3"}) {
		testContext.Fatalf("unexpected milestones %v", got)
	}
	spotlight, ok := state.Spotlight()
	if !ok || spotlight.ID != "4" {
		testContext.Fatalf("expected first open P1 in spotlight, got %+v", spotlight)
	}
	if _, ok := (State{}).Spotlight(); ok {
		testContext.Fatalf("empty board has no spotlight")
	}
}

func TestCountdown(testContext *testing.T) {
	now := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	cases := map[string]string{
		"":           "Set an event date to unlock countdown focus.",
		"garbage":    "Set an event date to unlock countdown focus.",
		"2025-06-11": "11 days to event day.",
		"2025-06-02": "2 days to event day.",
		"2025-06-01": "1 day to event day.",
		"2025-05-31": "Event day is today.",
		"2025-05-20": "11 days since event day.",
	}
	for date, want := range cases {
		state := State{EventDate: date}
		if got := state.Countdown(now); got != want {
			testContext.Fatalf("countdown for %q: expected %q, got %q", date, want, got)
		}
	}
}
