package node

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultReconnectDelay = 5 * time.Second
	maxReconnectDelay     = 10 * time.Minute
)

// Policy controls re-registration after the broker connection is lost.
// The zero value retries forever every DefaultReconnectDelay.
type Policy struct {
	Delay time.Duration
	// MaxAttempts caps consecutive retries; 0 means unlimited.
	MaxAttempts int
	// Multiplier scales the delay per consecutive retry; 1 keeps it fixed.
	Multiplier float64
}

func DefaultPolicy() Policy {
	return Policy{Delay: DefaultReconnectDelay, Multiplier: 1}
}

func (p Policy) withDefaults() Policy {
	if p.Delay <= 0 {
		p.Delay = DefaultReconnectDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	return p
}

// newBackOff builds the retry schedule: Delay scaled by Multiplier per
// consecutive retry, capped at maxReconnectDelay, without jitter.
func (p Policy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Delay
	if b.InitialInterval > maxReconnectDelay {
		b.InitialInterval = maxReconnectDelay
	}
	b.RandomizationFactor = 0
	b.Multiplier = p.Multiplier
	b.MaxInterval = maxReconnectDelay
	b.MaxElapsedTime = 0
	b.Reset()

	if p.MaxAttempts > 0 {
		return backoff.WithMaxRetries(b, uint64(p.MaxAttempts))
	}
	return b
}

func (n *Node) resetBackoff() {
	n.attempts = 0
	n.retry.Reset()
}

func (n *Node) scheduleReconnect() {
	delay := n.retry.NextBackOff()
	if delay == backoff.Stop {
		n.logger.Warnf("Giving up on broker after %d attempts", n.attempts)
		return
	}
	n.attempts++
	n.logger.Infof("Reconnecting to broker in %s (attempt %d)", delay, n.attempts)

	n.retrySeq++
	seq := n.retrySeq
	n.timers[seq] = time.AfterFunc(delay, func() {
		select {
		case n.retries <- seq:
		case <-n.stopped:
		}
	})
}

func (n *Node) handleRetry(seq int) {
	delete(n.timers, seq)

	if n.registered || n.registering {
		n.logger.Debug("Skipping reconnect, session already active")
		return
	}
	n.register(true)
}
