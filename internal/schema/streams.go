// Package schema names the journal streams and their listing conventions.
package schema

const (
	// StreamRunEvents carries every UI event emitted during agent runs.
	StreamRunEvents = "run_events"
	// StreamErrors carries error events only, for monitoring.
	StreamErrors = "errors"
)

// JournalStreams are the streams the run bridge writes to.
var JournalStreams = []string{
	StreamRunEvents,
	StreamErrors,
}

// StreamOrdering returns "fifo" or "lifo" for a given stream. Run events
// replay in production order; errors list newest-first.
func StreamOrdering(stream string) string {
	if stream == StreamRunEvents {
		return "fifo"
	}
	return "lifo"
}
