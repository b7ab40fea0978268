package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Event type names as sent by the daemon.
const (
	EventOutput      = "output"
	EventCompleted   = "completed"
	EventSpawnError  = "spawnError"
	EventOrphanBatch = "orphanBatch"
)

func decodeData[T any](e Event, want string) (T, error) {
	var v T
	if e.Type != want {
		return v, fmt.Errorf("event is %q, not %q", e.Type, want)
	}
	err := json.Unmarshal(e.Data, &v)
	return v, err
}

func (e Event) Output() (OutputEvent, error) { return decodeData[OutputEvent](e, EventOutput) }
func (e Event) Completed() (CompletedEvent, error) {
	return decodeData[CompletedEvent](e, EventCompleted)
}
func (e Event) SpawnError() (SpawnErrorEvent, error) {
	return decodeData[SpawnErrorEvent](e, EventSpawnError)
}
func (e Event) OrphanBatch() (OrphanBatchEvent, error) {
	return decodeData[OrphanBatchEvent](e, EventOrphanBatch)
}

// ErrStop may be returned by an Events handler to end the stream cleanly.
var ErrStop = errors.New("stop")

// Events subscribes to the daemon's event stream and calls fn for every
// event until ctx is done, the stream ends, or fn returns an error.
// Keep-alive pings are not delivered.
func (c *Client) Events(ctx context.Context, fn func(Event) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.stream.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return c.handleErrorResponse(resp)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	var name string
	var data strings.Builder
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data.Len() > 0 && name != "ping" {
				if err := dispatchEvent(data.String(), fn); err != nil {
					if errors.Is(err, ErrStop) {
						return nil
					}
					return err
				}
			}
			name = ""
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return sc.Err()
}

func dispatchEvent(payload string, fn func(Event) error) error {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return fn(ev)
}
