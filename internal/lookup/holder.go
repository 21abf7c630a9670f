package lookup

import (
	"context"
	"errors"
	"sync/atomic"
)

// Holder publishes the current Service to concurrent readers.
type Holder struct {
	svc atomic.Pointer[Service]
}

// Store replaces the current Service.
func (h *Holder) Store(s *Service) { h.svc.Store(s) }

// Current returns the loaded Service, or nil before the first Store.
func (h *Holder) Current() *Service { return h.svc.Load() }

// CheckReadiness returns nil once a Service has been stored.
func (h *Holder) CheckReadiness(_ context.Context) error {
	if h.svc.Load() == nil {
		return errors.New("tract data not loaded yet")
	}
	return nil
}
