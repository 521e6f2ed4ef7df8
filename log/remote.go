package log

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/carlmjohnson/requests"
)

const (
	// how long to wait before we resume sending events to the server
	// after a failure. doesn't affect logging to files
	throttleTimeout = time.Second * 15

	mimeJSON = "application/json"
)

type remoteOp struct {
	uri string
	d   []byte
}

type remote struct {
	server        string
	apiKey        string
	ch            chan remoteOp
	wg            sync.WaitGroup
	mu            sync.Mutex
	throttleUntil time.Time
}

var (
	rem   *remote
	remMu sync.Mutex
)

func consolef(s string, args ...any) {
	if Console == nil {
		return
	}
	fmt.Fprintf(Console, s, args...)
}

func (r *remote) worker() {
	defer r.wg.Done()
	for op := range r.ch {
		req := requests.
			URL(op.uri).
			BodyBytes(op.d).
			ContentType(mimeJSON)
		if r.apiKey != "" {
			req = req.Header("X-Api-Key", r.apiKey)
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		err := req.Fetch(ctx)
		cancel()
		if err != nil {
			consolef("sending event to %s failed: %v, will throttle for %s\n", op.uri, err, throttleTimeout)
			r.mu.Lock()
			r.throttleUntil = time.Now().Add(throttleTimeout)
			r.mu.Unlock()
		}
	}
}

func (r *remote) post(uriPath string, d []byte) {
	r.mu.Lock()
	throttleLeft := time.Until(r.throttleUntil)
	r.mu.Unlock()
	if throttleLeft > 0 {
		return
	}
	op := remoteOp{
		uri: "http://" + r.server + uriPath,
		d:   d,
	}
	select {
	case r.ch <- op:
	default:
		consolef("sending event to %s failed: channel full\n", op.uri)
	}
}

func startRemote(server string, apiKey string) {
	stopRemote()
	if server == "" {
		return
	}
	r := &remote{
		server: server,
		apiKey: apiKey,
		ch:     make(chan remoteOp, 1000),
	}
	r.wg.Add(1)
	go r.worker()
	remMu.Lock()
	rem = r
	remMu.Unlock()
}

// stopRemote waits until queued events are sent
func stopRemote() {
	remMu.Lock()
	r := rem
	rem = nil
	remMu.Unlock()
	if r == nil {
		return
	}
	close(r.ch)
	r.wg.Wait()
}

type remoteEvent struct {
	Name        string `json:"name"`
	TimestampMs int64  `json:"ts"`
	Data        string `json:"data,omitempty"`
}

func sendEvent(name string, t time.Time, d []byte) {
	remMu.Lock()
	defer remMu.Unlock()
	if rem == nil {
		return
	}
	ev := remoteEvent{
		Name:        name,
		TimestampMs: t.UTC().UnixMilli(),
		Data:        string(d),
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return
	}
	rem.post("/api/v1/event", body)
}
