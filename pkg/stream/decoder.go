package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
)

// dataPrefix is the SSE record marker. Lines without it (blank separators,
// ": keepalive" comments) are skipped.
const dataPrefix = "data: "

// doneSentinel may appear as a record payload and must not be parsed as JSON.
const doneSentinel = "[DONE]"

// Decoder incrementally parses SSE-framed events from a byte stream.
// Partial lines are buffered until the closing newline arrives, so a
// record split across two read chunks is reassembled before parsing.
// Malformed JSON in a single record is skipped rather than aborting the
// stream: one corrupt record must not lose the whole response.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next event, or io.EOF when the underlying stream ends.
// The stream ending without a terminal event is not detected here; callers
// that never saw a done/error event must treat EOF as an implicit error.
// If ctx is cancelled, Next returns ctx.Err() and the decoder must not be
// used again.
func (d *Decoder) Next(ctx context.Context) (*Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line, err := d.r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// A trailing fragment without its newline is an incomplete
				// record; only complete lines are parsed.
				return nil, io.EOF
			}
			return nil, err
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue // record separator
		}

		payload, ok := strings.CutPrefix(line, dataPrefix)
		if !ok {
			continue // SSE comment or unknown field
		}
		if payload == doneSentinel {
			continue
		}

		var ev Event
		if jsonErr := json.Unmarshal([]byte(payload), &ev); jsonErr != nil {
			continue // skip corrupt record, keep the stream alive
		}

		return &ev, nil
	}
}

// Encode frames a single event as an SSE record.
func Encode(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.Grow(len(dataPrefix) + len(payload) + 2)
	b.WriteString(dataPrefix)
	b.Write(payload)
	b.WriteString("\n\n")
	return []byte(b.String()), nil
}
