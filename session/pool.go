package session

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/opnsec/yhsm-go/securechannel"
	"github.com/opnsec/yhsm-go/transport"
)

// Pool maintains a fixed number of authenticated sessions against one
// transport, recycling any session as it nears the channel's command limit
// so callers never hit KindCommandLimitExceeded mid-request.
type Pool struct {
	mu       sync.Mutex
	sessions []*Session

	transport transport.Transport
	creds     Credentials
	logger    *slog.Logger
	size      int

	creationWait sync.WaitGroup

	stop chan struct{}
}

// recycleThreshold is the fraction of MaxCommandsPerSession at which a
// pooled session is retired and replaced, the same margin the original
// session-pool implementation left before the hard limit.
const recycleThreshold = 0.9

// NewPool creates a pool of size sessions against tr and starts its
// background recycling loop. size must not exceed message.MaxSessionID+1,
// the device's concurrent session ceiling.
func NewPool(ctx context.Context, tr transport.Transport, creds Credentials, size int, logger *slog.Logger) (*Pool, error) {
	if size > 16 {
		return nil, errors.New("session: pool size exceeds the device's session limit")
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		transport: tr,
		creds:     creds,
		logger:    logger,
		size:      size,
		stop:      make(chan struct{}),
	}
	p.household(ctx)

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.household(ctx)
			case <-p.stop:
				return
			}
		}
	}()

	return p, nil
}

// household closes any session nearing its command limit and opens new
// sessions to bring the pool back up to size.
func (p *Pool) household(ctx context.Context) {
	func() {
		p.mu.Lock()
		defer p.mu.Unlock()

		live := p.sessions[:0]
		for _, s := range p.sessions {
			if float64(s.channel.Counter()) > float64(securechannel.MaxCommandsPerSession)*recycleThreshold {
				go s.Close(ctx)
				continue
			}
			live = append(live, s)
		}
		p.sessions = live

		for i := 0; i < p.size-len(p.sessions); i++ {
			p.creationWait.Add(1)
			go func() {
				defer p.creationWait.Done()
				s, err := Open(ctx, p.transport, p.creds, p.logger)
				if err != nil {
					p.logger.Error("opening pooled session", "error", err)
					return
				}
				p.mu.Lock()
				defer p.mu.Unlock()
				p.sessions = append(p.sessions, s)
			}()
		}
	}()

	p.creationWait.Wait()
}

// Get returns a randomly chosen live session from the pool.
func (p *Pool) Get() (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil, errors.New("session: no sessions available in pool")
	}
	return p.sessions[rand.Intn(len(p.sessions))], nil
}

// Close stops the recycling loop, closes every pooled session, and zeroes
// the shared auth key: no session will be opened against it again.
func (p *Pool) Close(ctx context.Context) {
	close(p.stop)
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.sessions {
		s.Close(ctx)
	}
	p.sessions = nil
	p.creds.Key.Zero()
}
