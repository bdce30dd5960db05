package jsonrpc2

import "golang.org/x/exp/maps"

// Target selects which of a Server's connections receive a notification.
type Target struct {
	all bool
	ids []ConnID
}

// All targets every live connection.
func All() Target {
	return Target{all: true}
}

// One targets a single connection.
func One(id ConnID) Target {
	return Target{ids: []ConnID{id}}
}

// Some targets the listed connections.
func Some(ids ...ConnID) Target {
	return Target{ids: ids}
}

func (s *Server) targets(t Target) []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.all {
		return maps.Values(s.conns)
	}
	conns := make([]*Conn, 0, len(t.ids))
	for _, id := range t.ids {
		if c, ok := s.conns[id]; ok {
			conns = append(conns, c)
		}
	}
	return conns
}

// NotifyClients sends a notification to the targeted connections. The
// message is encoded once and each write is queued on the connection's
// worker, so NotifyClients never blocks on a slow peer. Targets that are not
// connected are skipped. It returns the number of writes queued.
func NotifyClients[P any](s *Server, m NotificationMethod[P], params P, target Target) (int, error) {
	if s.State() != StateStarted {
		return 0, ErrNotReady
	}
	codec := Codec{MaxPayload: s.cfg.MaxPayload}
	data, err := codec.Encode(newNotificationMessage(m.Name(), params))
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, c := range s.targets(target) {
		c := c
		ok := c.worker.submit(func() {
			if err := c.writeFrame(data); err != nil {
				s.logger.Debugf("server: %s to %s not sent: %s", m.Name(), c.id, err)
			}
		})
		if ok {
			queued++
		}
	}
	return queued, nil
}
