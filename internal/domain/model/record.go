package model

// JobRecord is the persisted representation of one job: the job header, its ordered steps,
// its key details, and the aggregate artifact list shown in the viewer's sidebar.
type JobRecord struct {
	Job              Job               `json:"job"`
	Logs             []Step            `json:"logs"`
	KeyDetails       map[string]string `json:"keyDetails"`
	SidebarArtifacts []Artifact        `json:"sidebarArtifacts"`
}

// NewJobRecord returns an empty record for job with non-nil collections.
func NewJobRecord(job Job) *JobRecord {
	return &JobRecord{
		Job:              job,
		Logs:             []Step{},
		KeyDetails:       map[string]string{},
		SidebarArtifacts: []Artifact{},
	}
}

// StepIndex returns the index of the step with the given id, or -1.
func (r *JobRecord) StepIndex(stepID string) int {
	for i := range r.Logs {
		if r.Logs[i].ID == stepID {
			return i
		}
	}
	return -1
}

// LastStep returns the most recently appended step, or nil when there are none.
func (r *JobRecord) LastStep() *Step {
	if len(r.Logs) == 0 {
		return nil
	}
	return &r.Logs[len(r.Logs)-1]
}

// Clone returns a deep copy so callers can mutate without affecting shared snapshots.
func (r *JobRecord) Clone() *JobRecord {
	if r == nil {
		return nil
	}
	out := &JobRecord{
		Job:              r.Job,
		Logs:             make([]Step, len(r.Logs)),
		KeyDetails:       make(map[string]string, len(r.KeyDetails)),
		SidebarArtifacts: cloneArtifacts(r.SidebarArtifacts),
	}
	if r.Job.Params != nil {
		out.Job.Params = make(map[string]string, len(r.Job.Params))
		for k, v := range r.Job.Params {
			out.Job.Params[k] = v
		}
	}
	for k, v := range r.KeyDetails {
		out.KeyDetails[k] = v
	}
	for i := range r.Logs {
		s := r.Logs[i]
		s.Artifacts = cloneArtifacts(s.Artifacts)
		s.Description = cloneStrings(s.Description)
		s.Reasoning = cloneStrings(s.Reasoning)
		out.Logs[i] = s
	}
	return out
}

func cloneArtifacts(in []Artifact) []Artifact {
	if in == nil {
		return nil
	}
	out := make([]Artifact, len(in))
	for i, a := range in {
		if a.Table != nil {
			t := &DataTable{Columns: cloneStrings(a.Table.Columns)}
			if a.Table.Rows != nil {
				t.Rows = make([][]string, len(a.Table.Rows))
				for j, row := range a.Table.Rows {
					t.Rows[j] = cloneStrings(row)
				}
			}
			a.Table = t
		}
		if a.Message != nil {
			m := *a.Message
			m.To = cloneStrings(a.Message.To)
			a.Message = &m
		}
		out[i] = a
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
