package sync

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// State is the checkpoint handed to the host, which persists it between runs.
type State struct {
	LastSync         time.Time
	RecordsProcessed int64
	RunID            string
}

// JSON encodes the state as {"last_sync", "records_processed", "run_id"}.
func (s State) JSON() (string, error) {
	result, err := sjson.Set("{}", "last_sync", s.LastSync.UTC().Format(time.RFC3339Nano))
	if err == nil {
		result, err = sjson.Set(result, "records_processed", s.RecordsProcessed)
	}
	if err == nil && s.RunID != "" {
		result, err = sjson.Set(result, "run_id", s.RunID)
	}
	return result, err
}

// IsZero reports whether no checkpoint has been recorded.
func (s State) IsZero() bool {
	return s.LastSync.IsZero() && s.RecordsProcessed == 0 && s.RunID == ""
}

// ParseState reads state written by JSON. An empty string is the zero State.
// last_sync may also be epoch seconds, the form earlier connector versions checkpointed.
func ParseState(json string) (State, error) {
	var result State
	if json == "" {
		return result, nil
	}
	if !gjson.Valid(json) {
		return result, fmt.Errorf("invalid state json %q", json)
	}
	parsed := gjson.Parse(json)
	lastSync := parsed.Get("last_sync")
	switch lastSync.Type {
	case gjson.String:
		t, err := time.Parse(time.RFC3339Nano, lastSync.String())
		if err != nil {
			return result, fmt.Errorf("failed to parse last_sync %w", err)
		}
		result.LastSync = t
	case gjson.Number:
		seconds := lastSync.Float()
		result.LastSync = time.Unix(0, int64(seconds*float64(time.Second))).UTC()
	}
	result.RecordsProcessed = parsed.Get("records_processed").Int()
	result.RunID = parsed.Get("run_id").String()
	return result, nil
}
