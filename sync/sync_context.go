package sync

// SyncContext holds the configuration and identity of one run.
// It is immutable after construction.
type SyncContext struct {
	Config         Config
	RunID          string
	RecordRequests bool
}
