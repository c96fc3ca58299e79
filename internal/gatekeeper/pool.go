package gatekeeper

import (
	"sync"
	"time"

	"github.com/fablehq/fable/config"
)

// Credential is one set of pinning gateway tokens plus the bookkeeping the
// pool keeps for it. The token material is immutable after construction;
// lastUsedAt and blockedUntil are owned by the pool and guarded by its mutex.
type Credential struct {
	Name      string
	APIKey    string
	APISecret string
	JWT       string

	lastUsedAt   time.Time
	blockedUntil time.Time
}

// Pool rotates a fixed set of gateway credentials. A credential is usable
// when its cooldown window has passed and it has not been used within the
// minimum spacing interval. Selection starts from a rotating cursor so usage
// spreads evenly instead of always favoring the first credential.
type Pool struct {
	mu         sync.Mutex
	creds      []*Credential
	cursor     int
	minSpacing time.Duration
	now        func() time.Time
}

// NewPool builds a pool from the configured credential set. minSpacing is the
// minimum time between two uses of the same credential.
func NewPool(configured []config.PinningCredential, minSpacing time.Duration) *Pool {
	creds := make([]*Credential, len(configured))
	for i, c := range configured {
		creds[i] = &Credential{
			Name:      c.Name,
			APIKey:    c.APIKey,
			APISecret: c.APISecret,
			JWT:       c.JWT,
		}
	}
	return &Pool{
		creds:      creds,
		minSpacing: minSpacing,
		now:        time.Now,
	}
}

// Size returns the number of credentials in the pool.
func (p *Pool) Size() int {
	return len(p.creds)
}

// Acquire selects the next usable credential in round-robin order. When no
// credential is usable it returns a nil credential and the duration until the
// earliest one becomes usable; the caller must sleep for that duration and
// retry rather than spin.
func (p *Pool) Acquire() (*Credential, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.creds) == 0 {
		return nil, 0
	}

	now := p.now()
	for i := 0; i < len(p.creds); i++ {
		idx := (p.cursor + i) % len(p.creds)
		cred := p.creds[idx]
		if now.Before(cred.blockedUntil) {
			continue
		}
		if !cred.lastUsedAt.IsZero() && now.Sub(cred.lastUsedAt) < p.minSpacing {
			continue
		}
		p.cursor = (idx + 1) % len(p.creds)
		return cred, 0
	}

	// Every credential is either cooling down or too recently used. Report
	// the wait until the earliest one frees up.
	var earliest time.Time
	for _, cred := range p.creds {
		usableAt := cred.blockedUntil
		if spacedAt := cred.lastUsedAt.Add(p.minSpacing); spacedAt.After(usableAt) {
			usableAt = spacedAt
		}
		if earliest.IsZero() || usableAt.Before(earliest) {
			earliest = usableAt
		}
	}

	wait := earliest.Sub(now)
	if wait <= 0 {
		wait = p.minSpacing
	}
	return nil, wait
}

// MarkUsed records that the credential was just presented to the gateway.
func (p *Pool) MarkUsed(cred *Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cred.lastUsedAt = p.now()
}

// MarkBlocked puts the credential on cooldown for the given duration and
// advances the rotation cursor past it. The cooldown never shrinks an
// existing block window.
func (p *Pool) MarkBlocked(cred *Credential, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	until := p.now().Add(d)
	if until.After(cred.blockedUntil) {
		cred.blockedUntil = until
	}
	for i, c := range p.creds {
		if c == cred {
			p.cursor = (i + 1) % len(p.creds)
			break
		}
	}
}
