package qa

import "time"

// SubgoalStatus is the progress state of a subgoal.
type SubgoalStatus string

// Subgoal statuses.
const (
	SubgoalPending  SubgoalStatus = "pending"
	SubgoalAchieved SubgoalStatus = "achieved"
)

// Subgoal is a discrete, independently verifiable unit of
// progress toward the test goal.
type Subgoal struct {
	ID             string        `json:"id"`
	Description    string        `json:"description"`
	Criterion      string        `json:"detection_criteria"`
	Status         SubgoalStatus `json:"status"`
	AchievedAtStep *int          `json:"achieved_at_step"`
	Confidence     float64       `json:"confidence"`
}

// Achieved reports whether the subgoal has been achieved.
func (s *Subgoal) Achieved() bool {
	return s.Status == SubgoalAchieved
}

// MarkAchieved moves the subgoal from pending to achieved. It
// returns false, leaving the subgoal untouched, when it was
// already achieved.
func (s *Subgoal) MarkAchieved(step int, confidence float64) bool {
	if s.Achieved() {
		return false
	}
	s.Status = SubgoalAchieved
	s.AchievedAtStep = &step
	s.Confidence = confidence
	return true
}

// SubgoalDecomposition is the ordered subgoal plan of one test.
// Its composition never changes after creation; only subgoal
// status does.
type SubgoalDecomposition struct {
	Goal      string    `json:"test_goal"`
	Subgoals  []Subgoal `json:"subgoals"`
	CreatedAt time.Time `json:"decomposition_timestamp"`
	Fallback  bool      `json:"fallback,omitempty"`
}

// Total returns the subgoal count.
func (d *SubgoalDecomposition) Total() int {
	if d == nil {
		return 0
	}
	return len(d.Subgoals)
}

// AchievedCount returns the number of achieved subgoals.
func (d *SubgoalDecomposition) AchievedCount() int {
	if d == nil {
		return 0
	}
	n := 0
	for i := range d.Subgoals {
		if d.Subgoals[i].Achieved() {
			n++
		}
	}
	return n
}

// Pending returns copies of the subgoals still pending, in order.
func (d *SubgoalDecomposition) Pending() []Subgoal {
	if d == nil {
		return nil
	}
	var out []Subgoal
	for _, sg := range d.Subgoals {
		if !sg.Achieved() {
			out = append(out, sg)
		}
	}
	return out
}

// Get returns the subgoal with the given id.
func (d *SubgoalDecomposition) Get(id string) (*Subgoal, bool) {
	if d == nil {
		return nil, false
	}
	for i := range d.Subgoals {
		if d.Subgoals[i].ID == id {
			return &d.Subgoals[i], true
		}
	}
	return nil, false
}

// MarkAchieved marks the subgoal with the given id. Unknown ids
// and already-achieved subgoals are ignored.
func (d *SubgoalDecomposition) MarkAchieved(
	id string,
	step int,
	confidence float64,
) bool {
	sg, ok := d.Get(id)
	if !ok {
		return false
	}
	return sg.MarkAchieved(step, confidence)
}

// Clone returns a deep copy suitable for persistence.
func (d *SubgoalDecomposition) Clone() *SubgoalDecomposition {
	if d == nil {
		return nil
	}
	out := *d
	out.Subgoals = make([]Subgoal, len(d.Subgoals))
	for i, sg := range d.Subgoals {
		if sg.AchievedAtStep != nil {
			step := *sg.AchievedAtStep
			sg.AchievedAtStep = &step
		}
		out.Subgoals[i] = sg
	}
	return &out
}
