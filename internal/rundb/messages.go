package rundb

import "time"

// The composite types used for messages to the ClickHouse database.

// ActivityMessage is the information for the scopelogactivity table: one
// entry per program invocation, written at start and again at exit.
type ActivityMessage struct {
	ID        string
	Hostname  string
	Githash   string
	Version   string
	GoVersion string
	CPUs      int
	Start     time.Time
	End       time.Time
}

// AcqRunMessage is the information required to make an entry in the acqruns table.
type AcqRunMessage struct {
	ID              string
	ActivityID      string
	Channels        []string
	SampleRate      int
	BatchLength     int
	DurationSeconds float64
	SinkPath        string
	Batches         int
	Rows            int
	Error           string
	Start           time.Time
	End             time.Time
}

const timeFormat = "2006-01-02 15:04:05.000000"

// formatTime renders t the way the DateTime64(6) columns expect. The zero
// time (a run not yet finished) becomes the epoch.
func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Unix(0, 0)
	}
	return t.UTC().Format(timeFormat)
}
