package progress

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobrelay/internal/relay"
)

func TestSubscribeDecodesFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/progress/wf_1", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		fmt.Fprintf(w, "data: {\"type\":\"connection\",\"workflowId\":\"wf_1\"}\n\n")
		fmt.Fprintf(w, ": keepalive comment\n\n")
		fmt.Fprintf(w, "data: {\"type\":\"progress\",\"step\":\"Fetch\",\"newMessage\":\"fetching\",\"progress\":10}\n\n")
		flusher.Flush()
	}))
	defer srv.Close()

	stream, err := Subscribe(context.Background(), srv.URL, "wf_1")
	require.NoError(t, err)
	defer stream.Close()

	ev, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, relay.EventConnection, ev.Type)
	assert.Equal(t, "wf_1", ev.WorkflowID)

	ev, err = stream.Next()
	require.NoError(t, err)
	assert.Equal(t, relay.EventProgress, ev.Type)
	assert.Equal(t, "Fetch", ev.Step)
	assert.Equal(t, "fetching", ev.NewMessage)
	require.NotNil(t, ev.Progress)
	assert.Equal(t, 10, *ev.Progress)

	// Handler returned, so the body is closed.
	_, err = stream.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSubscribeTrailingSlashBaseURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/progress/wf_2", r.URL.Path)
		fmt.Fprintf(w, "data: {\"type\":\"connection\"}\n\n")
	}))
	defer srv.Close()

	stream, err := Subscribe(context.Background(), srv.URL+"/", "wf_2")
	require.NoError(t, err)
	stream.Close()
}

func TestSubscribeRejectsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no id", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := Subscribe(context.Background(), srv.URL, "wf_3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestNextFailsOnMalformedFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "data: {not json}\n\n")
	}))
	defer srv.Close()

	stream, err := Subscribe(context.Background(), srv.URL, "wf_4")
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode frame")
}

func TestNextStopsOnContextCancel(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "data: {\"type\":\"connection\"}\n\n")
		w.(http.Flusher).Flush()
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := Subscribe(ctx, srv.URL, "wf_5")
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Next()
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = stream.Next()
	require.Error(t, err)
}
