package progress

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"jobrelay/internal/relay"
)

// Stream consumes a relay progress stream, decoding one ProgressEvent per
// SSE frame. It is a thin transport wrapper; folding events into a Model is
// the caller's loop.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// maxFrameSize bounds a single SSE line; frames are small JSON objects.
const maxFrameSize = 1 << 20

// Subscribe opens the progress stream for workflowID. The context governs
// the whole subscription: cancel it (or attach a deadline) to enforce the
// client-side connection timeout.
func Subscribe(ctx context.Context, baseURL, workflowID string) (*Stream, error) {
	url := fmt.Sprintf("%s/progress/%s", strings.TrimRight(baseURL, "/"), workflowID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("open stream: unexpected status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 4096), maxFrameSize)

	return &Stream{body: resp.Body, scanner: scanner}, nil
}

// Next blocks until the next event frame arrives and returns it. It returns
// io.EOF when the server closes the stream and the context's error when the
// subscription is cancelled or times out.
func (s *Stream) Next() (relay.ProgressEvent, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			// Blank separators and comment lines are skipped.
			continue
		}

		var ev relay.ProgressEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return relay.ProgressEvent{}, fmt.Errorf("decode frame: %w", err)
		}
		return ev, nil
	}

	if err := s.scanner.Err(); err != nil {
		return relay.ProgressEvent{}, err
	}
	return relay.ProgressEvent{}, io.EOF
}

// Close tears down the subscription.
func (s *Stream) Close() error {
	return s.body.Close()
}
