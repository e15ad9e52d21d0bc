// Package credentials manages rotating pools of provider credentials.
// Every remote provider draws keys or accounts from a Pool, which rotates
// round-robin and rests a credential after a failure so one bad key does
// not stall a whole session.
package credentials

import (
	"errors"
	"sync"
	"time"
)

// DefaultCooldown is how long a credential rests after a reported failure.
const DefaultCooldown = 5 * time.Minute

// ErrCredentialExhausted is returned by Acquire when no credential is
// usable, either because none are configured or all are cooling down.
var ErrCredentialExhausted = errors.New("no usable credential available")

// Credential is a single API key or account held by a Pool.
type Credential struct {
	ID            string
	Secret        string
	CooldownUntil time.Time
	LastUsed      time.Time
	FailureCount  int
}

// CredentialState is a read-only snapshot of a credential for status reporting.
type CredentialState struct {
	ID            string    `json:"id"`
	InCooldown    bool      `json:"in_cooldown"`
	CooldownUntil time.Time `json:"cooldown_until,omitempty"`
	LastUsed      time.Time `json:"last_used,omitempty"`
	FailureCount  int       `json:"failure_count"`
}

// Pool rotates credentials round-robin, skipping any in cooldown.
type Pool struct {
	name     string
	creds    []*Credential
	index    int
	mutex    sync.Mutex
	cooldown time.Duration
	now      func() time.Time
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithCooldown overrides the rest period applied on ReportFailure.
func WithCooldown(d time.Duration) PoolOption {
	return func(p *Pool) {
		p.cooldown = d
	}
}

// WithClock overrides the pool's time source. Used in tests.
func WithClock(now func() time.Time) PoolOption {
	return func(p *Pool) {
		p.now = now
	}
}

// NewPool creates a pool over the given credentials. The name is only used
// for status reporting.
func NewPool(name string, creds []Credential, opts ...PoolOption) *Pool {
	p := &Pool{
		name:     name,
		creds:    make([]*Credential, 0, len(creds)),
		cooldown: DefaultCooldown,
		now:      time.Now,
	}
	for i := range creds {
		c := creds[i]
		p.creds = append(p.creds, &c)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the pool's name.
func (p *Pool) Name() string { return p.name }

// Acquire returns the next usable credential, rotating past any that are
// cooling down. The credential stays in the pool; callers report the
// outcome with ReportFailure or ReportSuccess.
func (p *Pool) Acquire() (*Credential, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for i := 0; i < len(p.creds); i++ {
		cred := p.creds[p.index]
		p.index = (p.index + 1) % len(p.creds)
		if p.now().After(cred.CooldownUntil) {
			cred.LastUsed = p.now()
			return cred, nil
		}
	}
	return nil, ErrCredentialExhausted
}

// ReportFailure puts the credential into cooldown. A single failure is
// enough; transient provider errors clear naturally once the rest expires.
func (p *Pool) ReportFailure(cred *Credential) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	cred.FailureCount++
	cred.CooldownUntil = p.now().Add(p.cooldown)
}

// ReportSuccess clears the failure count so status reporting reflects a
// recovered credential.
func (p *Pool) ReportSuccess(cred *Credential) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	cred.FailureCount = 0
}

// Size returns the number of credentials in the pool.
func (p *Pool) Size() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.creds)
}

// Available returns how many credentials are currently usable.
func (p *Pool) Available() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	available := 0
	for _, cred := range p.creds {
		if p.now().After(cred.CooldownUntil) {
			available++
		}
	}
	return available
}

// States returns a snapshot of every credential in the pool.
func (p *Pool) States() []CredentialState {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	states := make([]CredentialState, len(p.creds))
	for i, cred := range p.creds {
		states[i] = CredentialState{
			ID:            cred.ID,
			InCooldown:    p.now().Before(cred.CooldownUntil),
			CooldownUntil: cred.CooldownUntil,
			LastUsed:      cred.LastUsed,
			FailureCount:  cred.FailureCount,
		}
	}
	return states
}
