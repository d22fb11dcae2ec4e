package workout

// Exercise is one catalog movement.
type Exercise struct {
	Name         string `json:"name"`
	MuscleGroups string `json:"muscleGroups"`
}

// Section groups interchangeable movements; a workout picks one per section.
type Section struct {
	Key       string
	Label     string
	Exercises []Exercise
}

func m(name, muscleGroups string) Exercise {
	return Exercise{Name: name, MuscleGroups: muscleGroups}
}

var catalog = map[Type][]Section{
	TypeUpper: {
		{Key: "push", Label: "Push", Exercises: []Exercise{
			m("Dumbbell Bench Press", "Chest, triceps, front delts"),
			m("Incline Dumbbell Press", "Upper chest, triceps, shoulders"),
			m("Push-Ups", "Chest, shoulders, triceps"),
		}},
		{Key: "pull", Label: "Pull", Exercises: []Exercise{
			m("Seated Cable Row", "Lats, mid-back, biceps"),
			m("Lat Pulldown", "Lats, biceps, rear delts"),
			m("Single-Arm Dumbbell Row", "Lats, rhomboids, biceps"),
		}},
	},
	TypeLower: {
		{Key: "hinge", Label: "Hinge", Exercises: []Exercise{
			m("Dumbbell RDL", "Hamstrings, glutes, erectors"),
			m("B-Stance RDL", "Hamstrings, glutes, balance/stability"),
			m("Cable Pull-Through", "Glutes, hamstrings, core"),
			m("Landmine Deadlift", "Glutes, hamstrings, quads"),
			m("Kettlebell Swings", "Glutes, hamstrings, posterior chain"),
		}},
		{Key: "thrust", Label: "Thrust", Exercises: []Exercise{
			m("Barbell Hip Thrust", "Glutes, hamstrings"),
			m("Dumbbell Hip Thrust", "Glutes, hamstrings"),
			m("Glute Bridge", "Glutes, hamstrings, core"),
			m("Frog Pumps", "Glutes"),
			m("Kas Glute Bridge", "Glutes, hamstrings"),
		}},
		{Key: "squat", Label: "Squat", Exercises: []Exercise{
			m("Landmine Sumo Squat", "Glutes, adductors, quads"),
			m("Heels-Elevated Goblet Squat", "Quads, glutes, core"),
			m("Front Squat", "Quads, glutes, core"),
			m("Smith Machine Glute-Biased Squat", "Glutes, quads, hamstrings"),
			m("Bodyweight Tempo Squat", "Quads, glutes, muscular endurance"),
		}},
		{Key: "unilateral", Label: "Unilateral", Exercises: []Exercise{
			m("Dumbbell Step-Ups", "Glutes, quads, calves"),
			m("Walking Lunges", "Glutes, quads, hamstrings"),
			m("Bulgarian Split Squat (glute-biased)", "Glutes, quads, hamstrings"),
			m("Reverse Lunges", "Glutes, quads, hamstrings"),
			m("Single-Leg Glute Bridge", "Glutes, hamstrings, core"),
		}},
	},
	TypeCardio: {
		{Key: "conditioning", Label: "Conditioning", Exercises: []Exercise{
			m("Bike Intervals", "Cardiovascular system, quads, calves"),
			m("Treadmill Incline Walk", "Cardiovascular system, glutes, calves"),
			m("Row Erg Intervals", "Cardiovascular system, back, legs"),
		}},
	},
}

var coreExercises = []Exercise{
	m("Dead Bug", "Deep core, hip flexors"),
	m("Pallof Press", "Obliques, anti-rotation core"),
	m("Side Plank", "Obliques, transverse abdominis"),
	m("Hollow Hold", "Rectus abdominis, deep core"),
}

// Sections returns the catalog sections of a workout type in display order.
func Sections(workoutType Type) []Section {
	return catalog[workoutType]
}

// CoreExercises lists the movements available as supersets.
func CoreExercises() []Exercise {
	return append([]Exercise(nil), coreExercises...)
}

func findSection(workoutType Type, sectionKey string) (Section, bool) {
	for _, section := range catalog[workoutType] {
		if section.Key == sectionKey {
			return section, true
		}
	}
	return Section{}, false
}

func findExercise(section Section, name string) (Exercise, bool) {
	for _, exercise := range section.Exercises {
		if exercise.Name == name {
			return exercise, true
		}
	}
	return Exercise{}, false
}

func isCoreExercise(name string) bool {
	for _, exercise := range coreExercises {
		if exercise.Name == name {
			return true
		}
	}
	return false
}
