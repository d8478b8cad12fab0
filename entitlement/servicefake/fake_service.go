package servicefake

import (
	"context"
	"errors"
	"sync"

	"github.com/jrsteele09/go-session-coordinator/entitlement"
)

var _ entitlement.Service = (*FakeService)(nil)

// FakeService serves records from memory. Set Err to fail every lookup and
// Gate to hold lookups until it is closed.
type FakeService struct {
	lock    sync.Mutex
	records map[string]entitlement.Record
	calls   map[string]int

	Err  error
	Gate chan struct{}
}

func NewFakeService() *FakeService {
	return &FakeService{
		records: make(map[string]entitlement.Record),
		calls:   make(map[string]int),
	}
}

func (f *FakeService) Set(userID string, hasAccess bool, tier entitlement.Tier) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.records[userID] = entitlement.Record{UserID: userID, HasAccess: hasAccess, Tier: tier}
}

func (f *FakeService) Calls(userID string) int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.calls[userID]
}

func (f *FakeService) Lookup(ctx context.Context, userID string) (entitlement.Record, error) {
	f.lock.Lock()
	f.calls[userID]++
	gate, err := f.Gate, f.Err
	f.lock.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return entitlement.Record{}, ctx.Err()
		}
	}
	if err != nil {
		return entitlement.Record{}, err
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	rec, ok := f.records[userID]
	if !ok {
		return entitlement.Record{}, errors.New("not found")
	}
	return rec, nil
}
