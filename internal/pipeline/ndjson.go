package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
)

// ContentType is the media type of an event stream.
const ContentType = "application/x-ndjson"

// Encoder writes events one JSON object per line. When the underlying
// writer is an http.Flusher each line is flushed as soon as it is written.
type Encoder struct {
	w       io.Writer
	flusher http.Flusher
}

// NewEncoder wraps w.
func NewEncoder(w io.Writer) *Encoder {
	f, _ := w.(http.Flusher)
	return &Encoder{w: w, flusher: f}
}

// Encode writes one event line.
func (e *Encoder) Encode(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	data = append(data, '\n')
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// Stream encodes every event of seq, stopping at the first write error.
// Stopping early abandons seq.
func (e *Encoder) Stream(seq iter.Seq[Event]) (int, error) {
	n := 0
	for ev := range seq {
		if err := e.Encode(ev); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Decode reads an NDJSON event stream. Blank lines are skipped.
func Decode(r io.Reader) ([]Event, error) {
	var events []Event
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return events, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return events, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}
