package isolate

import "fmt"

const portQueueDepth = 64

// OpenPort allocates a new message port on this isolate and bumps the
// active-port counter the embedder uses to decide whether the isolate still
// has live work pending.
func (iso *Isolate) OpenPort() uint64 {
	iso.portsMu.Lock()
	defer iso.portsMu.Unlock()
	iso.nextPort++
	id := iso.nextPort
	iso.ports[id] = make(chan Message, portQueueDepth)
	iso.activePortCount++
	return id
}

// ClosePort retires a port and decrements the active-port counter.
func (iso *Isolate) ClosePort(id uint64) {
	iso.portsMu.Lock()
	defer iso.portsMu.Unlock()
	if ch, ok := iso.ports[id]; ok {
		close(ch)
		delete(iso.ports, id)
		iso.activePortCount--
	}
}

// ActivePortCount reports how many ports are currently open.
func (iso *Isolate) ActivePortCount() int {
	iso.portsMu.Lock()
	defer iso.portsMu.Unlock()
	return iso.activePortCount
}

// Send enqueues a message into target's queue for the given port. Delivery
// is asynchronous: the target worker only drains it when it reaches a
// safepoint (DeliverPending), matching §5's port-delivery rule.
func (iso *Isolate) Send(port uint64, payload interface{}) error {
	iso.portsMu.Lock()
	ch, ok := iso.ports[port]
	iso.portsMu.Unlock()
	if !ok {
		return fmt.Errorf("isolate: port %d is not open", port)
	}
	select {
	case ch <- Message{Port: port, Payload: payload}:
		return nil
	default:
		return fmt.Errorf("isolate: port %d queue is full", port)
	}
}

// DeliverPending drains every port's queue into handler, one safepoint's
// worth of delivery. Compiled code reaches a safepoint at runtime-call
// entry/exit and at a prologue safepoint check (§5); this method models the
// "before message delivery" safepoint.
func (iso *Isolate) DeliverPending(handler func(Message)) {
	iso.portsMu.Lock()
	chans := make([]chan Message, 0, len(iso.ports))
	for _, ch := range iso.ports {
		chans = append(chans, ch)
	}
	iso.portsMu.Unlock()

	for _, ch := range chans {
		for {
			select {
			case msg := <-ch:
				handler(msg)
			default:
				goto nextChan
			}
		}
	nextChan:
	}
}
