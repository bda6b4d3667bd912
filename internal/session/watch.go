package session

import "github.com/go-rod/rod/lib/proto"

// requestWatch collects the requests fired while an action runs and
// tracks which of them are still outstanding.
type requestWatch struct {
	pending    map[string]bool
	seen       int
	navigation bool
	closed     bool
	changed    chan struct{}
}

// criticalTypes complete on loading-finished; anything else completes once
// its response headers arrive.
var criticalTypes = map[proto.NetworkResourceType]bool{
	proto.NetworkResourceTypeDocument:   true,
	proto.NetworkResourceTypeStylesheet: true,
	proto.NetworkResourceTypeScript:     true,
	proto.NetworkResourceTypeXHR:        true,
	proto.NetworkResourceTypeFetch:      true,
}

func (w *requestWatch) notify() {
	select {
	case w.changed <- struct{}{}:
	default:
	}
}

func (w *requestWatch) done(t *Tab) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(w.pending) == 0
}

func (t *Tab) watch() *requestWatch {
	w := &requestWatch{pending: map[string]bool{}, changed: make(chan struct{}, 1)}
	t.mu.Lock()
	t.watches[w] = struct{}{}
	t.mu.Unlock()
	return w
}

func (t *Tab) unwatch(w *requestWatch) {
	t.mu.Lock()
	delete(t.watches, w)
	t.mu.Unlock()
}

// closeWatch stops w from collecting new requests and reports what it saw.
func (t *Tab) closeWatch(w *requestWatch) (seen int, navigation bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w.closed = true
	return w.seen, w.navigation
}

func (t *Tab) onRequest(id, url, method, resourceType string, navigation bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := &ObservedRequest{ID: id, URL: url, Method: method, ResourceType: resourceType}
	t.requests.add(r)
	t.inflight[id] = r

	for w := range t.watches {
		if w.closed {
			continue
		}
		w.seen++
		w.pending[id] = true
		if navigation {
			w.navigation = true
		}
	}
}

func (t *Tab) onResponse(id string, status int, resourceType string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r, ok := t.inflight[id]; ok {
		r.Status = status
	}
	if criticalTypes[proto.NetworkResourceType(resourceType)] {
		return
	}
	t.settleLocked(id)
}

func (t *Tab) onRequestDone(id, failure string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r, ok := t.inflight[id]; ok {
		r.Finished = true
		r.Failure = failure
		delete(t.inflight, id)
	}
	t.settleLocked(id)
}

func (t *Tab) settleLocked(id string) {
	for w := range t.watches {
		if w.pending[id] {
			delete(w.pending, id)
			w.notify()
		}
	}
}
