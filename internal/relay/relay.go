// Package relay is the always-on coordinator between the panel surface
// and the page agents. It forwards one request at a time to whichever
// agent is currently active and waits for exactly one reply; if the
// agent is absent or silent it synthesizes a connectivity error instead
// of surfacing a raw channel failure. The relay holds no state between
// requests and never retries.
package relay

import (
	"context"
	"sync"
	"time"
)

// ActionGetTranscript is the only request kind the relay carries.
const ActionGetTranscript = "getTranscript"

// ErrUnreachable is the user-facing connectivity message, in place of
// whatever actually went wrong on the channel.
const ErrUnreachable = "Could not connect to the video page. Please reload the page and try again."

// Request is the panel-side half of the wire contract.
type Request struct {
	Action string `json:"action"`
}

// Response is the page-side half: either a full payload or an error.
// VideoID identifies the video the answering page holds, so the caller
// never has to guess which page replied.
type Response struct {
	VideoID     string `json:"video_id,omitempty"`
	Transcript  string `json:"transcript,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

type envelope struct {
	req   Request
	reply chan Response
}

// HandlerFunc answers a single relayed request inside the page context.
type HandlerFunc func(ctx context.Context, req Request) Response

// Agent is the page-side endpoint of the relay channel.
type Agent struct {
	ID    string
	inbox chan envelope
}

// Serve answers requests until ctx is cancelled. One reply per request.
func (a *Agent) Serve(ctx context.Context, handle HandlerFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-a.inbox:
			env.reply <- handle(ctx, env.req)
		}
	}
}

type Relay struct {
	timeout time.Duration

	mu     sync.Mutex
	agents map[string]*Agent
	active string
}

func New(timeout time.Duration) *Relay {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Relay{timeout: timeout, agents: make(map[string]*Agent)}
}

// Attach registers a page agent and makes it the active page.
func (r *Relay) Attach(id string) *Agent {
	a := &Agent{ID: id, inbox: make(chan envelope)}
	r.mu.Lock()
	r.agents[id] = a
	r.active = id
	r.mu.Unlock()
	return a
}

// Detach removes an agent. If it was the active page, no page is active
// until the next Attach.
func (r *Relay) Detach(id string) {
	r.mu.Lock()
	delete(r.agents, id)
	if r.active == id {
		r.active = ""
	}
	r.mu.Unlock()
}

// Active reports the id of the currently active page, if any.
func (r *Relay) Active() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active, r.active != ""
}

// Forward sends the request to the active agent and awaits its single
// reply. A missing agent, a full inbox or a timeout all come back as
// the same connectivity-error response.
func (r *Relay) Forward(ctx context.Context, req Request) Response {
	r.mu.Lock()
	agent := r.agents[r.active]
	r.mu.Unlock()

	if agent == nil {
		return Response{Error: ErrUnreachable}
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	env := envelope{req: req, reply: make(chan Response, 1)}
	select {
	case agent.inbox <- env:
	case <-timer.C:
		return Response{Error: ErrUnreachable}
	case <-ctx.Done():
		return Response{Error: ErrUnreachable}
	}

	select {
	case resp := <-env.reply:
		return resp
	case <-timer.C:
		return Response{Error: ErrUnreachable}
	case <-ctx.Done():
		return Response{Error: ErrUnreachable}
	}
}
