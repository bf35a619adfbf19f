package session

import (
	"context"
	"sync"

	"github.com/mlilback/rc2SwiftClient-sub000/internal/metrics"
	"github.com/mlilback/rc2SwiftClient-sub000/pkg/protocol"
)

type result struct {
	resp protocol.Transactional
	err  error
}

// pendingTransactions correlates requests with their responses by
// transaction id. Each waiter is completed exactly once.
type pendingTransactions struct {
	mu      sync.Mutex
	waiters map[string]chan result
	err     error
}

func newPendingTransactions() *pendingTransactions {
	return &pendingTransactions{waiters: make(map[string]chan result)}
}

// add registers id. Once failAll has run, the returned channel is already
// completed with that error.
func (p *pendingTransactions) add(id string) <-chan result {
	ch := make(chan result, 1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		ch <- result{err: p.err}
		return ch
	}
	p.waiters[id] = ch
	metrics.SetPendingTransactions(len(p.waiters))
	return ch
}

// resolve completes the waiter for resp's transaction id. It reports false
// for ids that are unknown or already completed.
func (p *pendingTransactions) resolve(resp protocol.Transactional) bool {
	p.mu.Lock()
	ch, ok := p.waiters[resp.TransactionID()]
	if ok {
		delete(p.waiters, resp.TransactionID())
		metrics.SetPendingTransactions(len(p.waiters))
	}
	p.mu.Unlock()
	if ok {
		ch <- result{resp: resp}
	}
	return ok
}

func (p *pendingTransactions) remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.waiters, id)
	metrics.SetPendingTransactions(len(p.waiters))
}

// failAll completes every waiter with err and fails all later adds.
func (p *pendingTransactions) failAll(err error) {
	p.mu.Lock()
	waiters := p.waiters
	p.waiters = make(map[string]chan result)
	p.err = err
	metrics.SetPendingTransactions(0)
	p.mu.Unlock()
	for _, ch := range waiters {
		ch <- result{err: err}
	}
}

func (p *pendingTransactions) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}

// wait blocks for the result of id. On ctx expiry the transaction is
// forgotten, so a late response is dropped.
func (p *pendingTransactions) wait(ctx context.Context, id string, ch <-chan result) (protocol.Transactional, error) {
	select {
	case r := <-ch:
		return r.resp, r.err
	case <-ctx.Done():
		p.remove(id)
		return nil, ctx.Err()
	}
}
