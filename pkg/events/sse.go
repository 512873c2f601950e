package events

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// WriteSSE encodes one event as a Server-Sent-Events frame:
//
//	event: <kind>
//	data: <payload>
//
// Start and End payloads are their JSON objects; Log payloads are the raw
// text line. Multi-line log text is split across data: lines per the SSE
// framing rules.
func WriteSSE(w io.Writer, ev Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", ev.Kind()); err != nil {
		return err
	}

	switch e := ev.(type) {
	case Log:
		for _, line := range strings.Split(e.Line, "\n") {
			if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
				return err
			}
		}
	case Start, End:
		b, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal %s event: %w", ev.Kind(), err)
		}
		if _, err := fmt.Fprintf(w, "data: %s\n", b); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind())
	}

	_, err := io.WriteString(w, "\n")
	return err
}

// WriteSSEAll encodes a drained batch in order.
func WriteSSEAll(w io.Writer, evs []Event) error {
	for _, ev := range evs {
		if err := WriteSSE(w, ev); err != nil {
			return err
		}
	}
	return nil
}
