package logger

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/glorpus-work/bagfetch/pkg/events"
)

// EventSink renders fetch events as log lines: progress at debug level,
// retries as warnings, outcomes at info or error level.
func EventSink() events.Sink {
	return events.SinkFunc(logEvent)
}

func logEvent(e events.Event) {
	fields := Fields{"entry": e.EntryID, "url": e.URL}
	if e.Attempt > 0 {
		fields["attempt"] = e.Attempt
	}

	switch e.Phase {
	case events.PhaseQueued, events.PhaseRequesting, events.PhaseVerifying:
		Debug(string(e.Phase), fields)
	case events.PhaseStreaming:
		fields["bytes"] = humanize.IBytes(uint64(max(e.Bytes, 0)))
		if e.Total >= 0 {
			fields["total"] = humanize.IBytes(uint64(e.Total))
		}
		Debug("streaming", fields)
	case events.PhaseRetrying:
		fields["kind"] = e.Kind.String()
		fields["delay"] = e.Delay.String()
		fields["error"] = errString(e.Err)
		Warn("Retrying fetch", fields)
	case events.PhaseDone:
		fields["size"] = humanize.IBytes(uint64(max(e.Bytes, 0)))
		fields["elapsed"] = e.Elapsed.Round(time.Millisecond).String()
		Success("Fetched", fields)
	case events.PhaseSkipped:
		Info("Skipped existing file", fields)
	case events.PhaseFailed:
		fields["kind"] = e.Kind.String()
		fields["error"] = errString(e.Err)
		Error("Fetch failed", fields)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
