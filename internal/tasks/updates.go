package tasks

// Phase identifies the stage of a playlist build.
type Phase string

const (
	PhaseFetch  Phase = "fetch"
	PhaseMatch  Phase = "match"
	PhaseCreate Phase = "create"
	PhaseDone   Phase = "done"
)

// ProgressUpdate is a single status report emitted during a build.
type ProgressUpdate struct {
	Phase   Phase
	Message string
	Current int
	Total   int
}
