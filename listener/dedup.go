package listener

import "sync"

// notificationWindow is a fixed-size sliding window over already observed
// notification ids. It absorbs at-least-once redelivery from the transport;
// the store's claim stays the authoritative idempotency guard.
type notificationWindow struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	size  int
}

func newNotificationWindow(size int) *notificationWindow {
	if size <= 0 {
		size = 512
	}
	return &notificationWindow{
		seen: make(map[string]struct{}, size),
		size: size,
	}
}

// Observe records the id and reports whether it was already in the window.
// Ids without a value are never deduplicated.
func (w *notificationWindow) Observe(notificationId string) bool {
	if notificationId == "" {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.seen[notificationId]; ok {
		return true
	}

	w.seen[notificationId] = struct{}{}
	w.order = append(w.order, notificationId)
	if len(w.order) > w.size {
		oldest := w.order[0]
		w.order = w.order[1:]
		delete(w.seen, oldest)
	}
	return false
}

// Forget removes an id so a redelivery is processed again, used when
// handling a notification failed after it was observed.
func (w *notificationWindow) Forget(notificationId string) {
	if notificationId == "" {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.seen[notificationId]; !ok {
		return
	}
	delete(w.seen, notificationId)
	for i, id := range w.order {
		if id == notificationId {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
}
