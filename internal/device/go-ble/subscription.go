package goble

import (
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/bletower/internal/device"
)

// subscriptions tracks the characteristics subscribed through go-ble so they can
// be unsubscribed before the connection is cancelled.
type subscriptions struct {
	mu     sync.Mutex
	active map[*characteristic]bool // value: indication
	logger *logrus.Logger
}

func newSubscriptions(logger *logrus.Logger) *subscriptions {
	return &subscriptions{active: make(map[*characteristic]bool), logger: logger}
}

func (s *subscriptions) add(client ble.Client, c *characteristic, indicate bool, h ble.NotificationHandler) error {
	if err := client.Subscribe(c.ble, indicate, h); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[c] = indicate
	return nil
}

func (s *subscriptions) remove(client ble.Client, c *characteristic) error {
	s.mu.Lock()
	indicate, ok := s.active[c]
	delete(s.active, c)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return client.Unsubscribe(c.ble, indicate)
}

// removeAll unsubscribes everything, logging failures; the connection is going away anyway.
func (s *subscriptions) removeAll(client ble.Client) {
	s.mu.Lock()
	active := s.active
	s.active = make(map[*characteristic]bool)
	s.mu.Unlock()

	for c, indicate := range active {
		if err := client.Unsubscribe(c.ble, indicate); err != nil {
			s.logger.WithError(err).WithField("characteristic", device.ShortenUUID(c.id)).Warn("Failed to unsubscribe")
		}
	}
}
