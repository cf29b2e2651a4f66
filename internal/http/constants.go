package httpx

import "time"

// Page identifiers used for navigation highlighting and content template lookup.
const (
	PageJobs = "jobs"
	PageJob  = "job"
)

// Content template names, one per page.
const (
	templateJobs     = "jobs-content"
	templateJob      = "job-content"
	templateTimeline = "timeline"
)

const (
	// maxJSONBody bounds API request bodies.
	maxJSONBody = 1 << 20

	// timelinePollInterval is how often the job page re-fetches its timeline fragment.
	timelinePollInterval = 2 * time.Second
)

// Index tabs, in display order.
var jobTabs = []jobTab{
	{Key: "error", Label: "Needs attention"},
	{Key: "in_progress", Label: "In progress"},
	{Key: "pending", Label: "Pending"},
	{Key: "void", Label: "Void"},
	{Key: "done", Label: "Done"},
}

type jobTab struct {
	Key   string
	Label string
}
