package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/hourglass-app/hourglass/internal/idle"

	"github.com/pkg/errors"
)

// ErrUnknownPrompt marks a disposition answer for a prompt that does not
// exist or was already resolved.
var ErrUnknownPrompt = errors.New("unknown or already resolved prompt")

const defaultPromptTimeout = 2 * time.Minute

// HubPrompter delivers idle disposition prompts over the SSE hub and waits
// for the answer to come back through the disposition endpoint. No connected
// client or no answer within the timeout falls back to Keep, the same
// behavior as running headless.
type HubPrompter struct {
	hub     *Hub
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan idle.Choice
}

func NewHubPrompter(hub *Hub, timeout time.Duration) *HubPrompter {
	if timeout <= 0 {
		timeout = defaultPromptTimeout
	}
	return &HubPrompter{
		hub:     hub,
		timeout: timeout,
		pending: make(map[string]chan idle.Choice),
	}
}

// PromptIdle broadcasts the prompt and blocks until an answer, the timeout or
// ctx. Runs on a goroutine of the idle monitor, never on its state loop.
func (p *HubPrompter) PromptIdle(ctx context.Context, req idle.PromptRequest) (idle.Choice, error) {
	if p.hub.SubscriberCount() == 0 {
		return idle.Keep, nil
	}

	answer := make(chan idle.Choice, 1)
	p.mu.Lock()
	p.pending[req.ID] = answer
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, req.ID)
		p.mu.Unlock()
	}()

	p.hub.Broadcast(Event{Name: "idle-prompt", Data: req})

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case choice := <-answer:
		return choice, nil
	case <-timer.C:
		log.Printf("Idle disposition prompt %s timed out, keeping idle time", req.ID)
		return idle.Keep, nil
	case <-ctx.Done():
		return idle.Keep, ctx.Err()
	}
}

// Resolve answers a pending prompt by id.
func (p *HubPrompter) Resolve(id string, choice idle.Choice) error {
	p.mu.Lock()
	answer, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
	}
	p.mu.Unlock()

	if !ok {
		return errors.Wrapf(ErrUnknownPrompt, "%q", id)
	}
	answer <- choice
	return nil
}
