package sequencer

// Policy declares how the engine reacts when a step fails.
type Policy int

const (
	// Fatal aborts the run immediately.
	Fatal Policy = iota
	// Recoverable records an Incident and continues.
	Recoverable
)

func (p Policy) String() string {
	if p == Fatal {
		return "fatal"
	}
	return "recoverable"
}

// Taint marks that an earlier recoverable failure left a later step's
// precondition unmet.
type Taint string

const (
	// TaintConfigDirty is set when the default configuration purge or the
	// customer parameter overrides fail, leaving mixed configuration data.
	TaintConfigDirty Taint = "config-dirty"
	// TaintReaderMissing is set when reader credential provisioning fails.
	TaintReaderMissing Taint = "reader-missing"
)

// Status is the overall outcome of a run.
type Status string

const (
	StatusCompletedClean         Status = "completed-clean"
	StatusCompletedWithIncidents Status = "completed-with-incidents"
	StatusAborted                Status = "aborted"
)

// Incident is a recorded non-fatal failure or dependency skip. Incidents are
// append-only and surfaced at run end.
type Incident struct {
	Step    string
	Message string
	Skipped bool
}

// RunResult is what a provisioning run returns to its caller.
type RunResult struct {
	Status    Status
	RunID     string
	Incidents []Incident
	// FatalStep names the step that aborted the run; empty otherwise.
	FatalStep string
	Err       error
}

// state is the mutable execution state owned by the engine for one run. It
// is created at run start and discarded at run end.
type state struct {
	incidents []Incident
	taints    map[Taint]struct{}
}

func newState() *state {
	return &state{taints: make(map[Taint]struct{})}
}

func (s *state) record(step, message string) {
	s.incidents = append(s.incidents, Incident{Step: step, Message: message})
}

func (s *state) recordSkip(step, message string) {
	s.incidents = append(s.incidents, Incident{Step: step, Message: message, Skipped: true})
}

func (s *state) taint(t Taint) {
	s.taints[t] = struct{}{}
}

// firstTaint returns the first of the given taints that is set.
func (s *state) firstTaint(taints []Taint) (Taint, bool) {
	for _, t := range taints {
		if _, ok := s.taints[t]; ok {
			return t, true
		}
	}
	return "", false
}
