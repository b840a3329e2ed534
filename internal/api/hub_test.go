package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hourglass-app/hourglass/internal/idle"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestHubBroadcastReachesSubscribers(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe()
	b := hub.Subscribe()
	defer hub.Unsubscribe(a)
	defer hub.Unsubscribe(b)

	assert.Equal(t, 2, hub.SubscriberCount())
	hub.Broadcast(Event{Name: "test", Data: map[string]int{"n": 1}})

	for _, ch := range []chan Event{a, b} {
		select {
		case ev := <-ch:
			assert.Equal(t, "test", ev.Name)
		default:
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestHubSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	// Overfill the buffer; Broadcast must return promptly every time.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Broadcast(Event{Name: "flood"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}
}

func TestHandleSSEStreamsEvents(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleSSE))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	waitFor(t, func() bool { return hub.SubscriberCount() == 1 }, "client never subscribed")
	hub.Broadcast(Event{Name: "idle-prompt", Data: map[string]string{"id": "abc"}})

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}

	assert.Equal(t, "event: idle-prompt", lines[0])
	assert.Equal(t, `data: {"id":"abc"}`, lines[1])
}

func TestPrompterNoSubscribersFallsBackToKeep(t *testing.T) {
	prompter := NewHubPrompter(NewHub(), time.Minute)

	choice, err := prompter.PromptIdle(context.Background(), idle.PromptRequest{ID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, idle.Keep, choice)
}

func TestPrompterRoundTrip(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)
	prompter := NewHubPrompter(hub, time.Minute)

	result := make(chan idle.Choice, 1)
	go func() {
		choice, _ := prompter.PromptIdle(context.Background(), idle.PromptRequest{ID: "p1"})
		result <- choice
	}()

	// The prompt shows up on the hub first.
	var ev Event
	select {
	case ev = <-ch:
	case <-time.After(time.Second):
		t.Fatal("prompt never broadcast")
	}
	req, ok := ev.Data.(idle.PromptRequest)
	require.True(t, ok)
	assert.Equal(t, "p1", req.ID)

	require.NoError(t, prompter.Resolve("p1", idle.Discard))

	select {
	case choice := <-result:
		assert.Equal(t, idle.Discard, choice)
	case <-time.After(time.Second):
		t.Fatal("prompt never resolved")
	}
}

func TestPrompterTimeoutKeeps(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)
	prompter := NewHubPrompter(hub, 20*time.Millisecond)

	choice, err := prompter.PromptIdle(context.Background(), idle.PromptRequest{ID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, idle.Keep, choice)

	// After the timeout the prompt is gone.
	assert.True(t, errors.Is(prompter.Resolve("p1", idle.Discard), ErrUnknownPrompt))
}

func TestPrompterResolveUnknownID(t *testing.T) {
	prompter := NewHubPrompter(NewHub(), time.Minute)
	err := prompter.Resolve("nope", idle.Keep)
	assert.True(t, errors.Is(err, ErrUnknownPrompt))
}
