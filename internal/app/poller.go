package app

import (
	"context"
	"log"
	"sync"
	"time"
)

// Poller refreshes the prediction history in the background so entries
// saved by other clients show up without a manual reload.
type Poller struct {
	analyzer *Analyzer
	interval time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	done    chan struct{}
	onError func(error)
}

// NewPoller creates a poller. It returns nil if interval is not positive,
// which disables polling.
func NewPoller(analyzer *Analyzer, interval time.Duration) *Poller {
	if interval <= 0 {
		return nil
	}
	return &Poller{analyzer: analyzer, interval: interval}
}

// OnError sets the callback for failed refreshes. The callback is called
// from a background goroutine.
func (p *Poller) OnError(callback func(error)) {
	p.mu.Lock()
	p.onError = callback
	p.mu.Unlock()
}

// Start begins polling in a background goroutine. Starting a running poller
// does nothing.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh != nil {
		return
	}
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	go p.pollLoop(p.stopCh, p.done)
}

// Stop stops the poller and waits for an in-flight refresh to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	stopCh, done := p.stopCh, p.done
	p.stopCh, p.done = nil, nil
	p.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-done
}

func (p *Poller) pollLoop(stopCh, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if err := p.analyzer.RefreshHistory(ctx); err != nil && ctx.Err() == nil {
				log.Printf("[app] history poll: %v", err)
				p.mu.Lock()
				onError := p.onError
				p.mu.Unlock()
				if onError != nil {
					onError(err)
				}
			}
		}
	}
}
