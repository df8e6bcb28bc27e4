package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"mintExchange/internal/model"
)

const (
	profileQueueSize = 256
	profileTimeout   = 10 * time.Second
)

// UserWriter stores resolved profiles.
type UserWriter interface {
	UpsertUser(ctx context.Context, user model.User) error
}

// ProfileSyncer refreshes cached user profiles in the background. Its failures
// are logged and never reach the caller that enqueued the address.
type ProfileSyncer struct {
	resolver Resolver
	users    UserWriter
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	closed bool
	queue  chan string
	wg     sync.WaitGroup
}

func NewProfileSyncer(resolver Resolver, users UserWriter, workers int, logger *zap.Logger) *ProfileSyncer {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ProfileSyncer{
		resolver: resolver,
		users:    users,
		logger:   logger,
		now:      time.Now,
		queue:    make(chan string, profileQueueSize),
	}
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.work()
	}
	return s
}

// Enqueue schedules a profile refresh. It never blocks: when the queue is full
// or the syncer is closed the address is dropped and false is returned.
func (s *ProfileSyncer) Enqueue(address string) bool {
	if address == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- strings.ToLower(address):
		return true
	default:
		s.logger.Debug("profile queue full", zap.String("address", address))
		return false
	}
}

// Close stops accepting work and waits for queued refreshes to finish.
func (s *ProfileSyncer) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *ProfileSyncer) work() {
	defer s.wg.Done()
	for address := range s.queue {
		s.refresh(address)
	}
}

func (s *ProfileSyncer) refresh(address string) {
	ctx, cancel := context.WithTimeout(context.Background(), profileTimeout)
	defer cancel()

	identities, err := s.resolver.Resolve(ctx, address)
	if err != nil {
		s.logger.Warn("profile resolve failed", zap.String("address", address), zap.Error(err))
		return
	}
	if len(identities) == 0 {
		return
	}

	user := model.User{Address: address, Identity: identities[0], UpdatedAt: s.now().UTC()}
	if err := s.users.UpsertUser(ctx, user); err != nil {
		s.logger.Warn("profile upsert failed", zap.String("address", address), zap.Error(err))
	}
}
