package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aimd54/judge-helpdesk-bot/internal/metrics"
	"github.com/aimd54/judge-helpdesk-bot/pkg/logger"
)

// UpdateHandler processes one update to completion.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update *Update) error
}

// UpdateSource is the part of the Bot API the poller needs.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error)
	DeleteWebhook(ctx context.Context) error
}

// OffsetStore persists the polling offset across restarts.
type OffsetStore interface {
	GetOffset(ctx context.Context) (int64, error)
	SaveOffset(ctx context.Context, offset int64) error
}

// Poller long polls for updates and hands them to a fixed pool of workers.
// Updates from one user always land on the same worker, so each user's
// events are handled in order while different users proceed in parallel.
type Poller struct {
	source      UpdateSource
	handler     UpdateHandler
	offsetStore OffsetStore // nil keeps the offset in memory only
	log         *logger.Logger

	pollTimeout int
	workerCount int
	retryDelay  time.Duration

	lastUpdateID int64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPoller creates a poller. offsetStore may be nil.
func NewPoller(source UpdateSource, handler UpdateHandler, offsetStore OffsetStore, pollTimeout, workers int, log *logger.Logger) *Poller {
	if workers < 1 {
		workers = 1
	}
	return &Poller{
		source:      source,
		handler:     handler,
		offsetStore: offsetStore,
		log:         log,
		pollTimeout: pollTimeout,
		workerCount: workers,
		retryDelay:  5 * time.Second,
	}
}

// Start begins polling in the background.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	if p.offsetStore != nil {
		saved, err := p.offsetStore.GetOffset(ctx)
		if err != nil {
			p.log.Warn().Err(err).Msg("Failed to load polling offset, starting from 0")
		} else if saved > 0 {
			p.lastUpdateID = saved
			p.log.Info().Int64("offset", saved).Msg("Loaded polling offset")
		}
	}

	// Telegram refuses getUpdates while a webhook is set
	if err := p.source.DeleteWebhook(ctx); err != nil {
		p.log.Warn().Err(err).Msg("Failed to delete webhook before polling")
	}

	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go p.loop(pollCtx)

	p.log.Info().
		Int("timeout", p.pollTimeout).
		Int("workers", p.workerCount).
		Msg("Telegram polling started")
	return nil
}

// Stop cancels the in-flight poll and waits for running handlers.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Info().Msg("Telegram polling stopped")
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	for ctx.Err() == nil {
		p.poll(ctx)
	}
}

func (p *Poller) poll(ctx context.Context) {
	offset := int64(0)
	if p.lastUpdateID > 0 {
		offset = p.lastUpdateID + 1
	}

	updates, err := p.source.GetUpdates(ctx, offset, p.pollTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.log.Error().Err(err).Int64("offset", offset).Msg("Failed to get updates")
		select {
		case <-ctx.Done():
		case <-time.After(p.retryDelay):
		}
		return
	}
	if len(updates) == 0 {
		return
	}

	done := p.dispatch(ctx, updates)

	// Commit only the handled prefix so a shutdown or crash mid-batch replays
	// the rest. Telegram acknowledges everything below the offset.
	committed := p.lastUpdateID
	for i, u := range updates {
		if u.UpdateID <= committed {
			continue
		}
		if !done[i] {
			break
		}
		committed = u.UpdateID
	}
	if committed == p.lastUpdateID {
		return
	}
	p.lastUpdateID = committed

	if p.offsetStore != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.offsetStore.SaveOffset(saveCtx, p.lastUpdateID); err != nil {
			p.log.Warn().Err(err).Msg("Failed to save polling offset")
		}
	}
}

// dispatch hands the batch to the workers and reports which updates were
// handled. Updates left behind by a cancelled ctx stay false.
func (p *Poller) dispatch(ctx context.Context, updates []Update) []bool {
	done := make([]bool, len(updates))
	buckets := make([][]int, p.workerCount)
	for i := range updates {
		if updates[i].UpdateID <= p.lastUpdateID {
			continue
		}
		idx := p.affinity(&updates[i])
		buckets[idx] = append(buckets[idx], i)
	}

	var wg sync.WaitGroup
	for worker, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		wg.Add(1)
		go func(worker int, bucket []int) {
			defer wg.Done()
			for _, i := range bucket {
				if ctx.Err() != nil {
					return
				}
				p.handle(ctx, worker, &updates[i])
				done[i] = true
			}
		}(worker, bucket)
	}
	wg.Wait()
	return done
}

// handle runs the handler for one update; a panic only loses that update.
func (p *Poller) handle(ctx context.Context, worker int, u *Update) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().
				Int("worker", worker).
				Int64("update_id", u.UpdateID).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Recovered from panic in update handler")
		}
	}()

	metrics.RecordUpdateReceived("polling")
	if err := p.handler.HandleUpdate(ctx, u); err != nil {
		p.log.Error().
			Err(err).
			Int("worker", worker).
			Int64("update_id", u.UpdateID).
			Msg("Failed to handle update")
	}
}

// affinity maps an update to a worker by user ID.
func (p *Poller) affinity(u *Update) int {
	id := u.UpdateID
	if sender := u.Sender(); sender != nil {
		id = sender.ID
	}
	idx := int(id % int64(p.workerCount))
	if idx < 0 {
		idx += p.workerCount
	}
	return idx
}

const pollingOffsetKey = "helpdesk:telegram:polling:offset"

// RedisOffsetStore persists the polling offset in Redis.
type RedisOffsetStore struct {
	client *redis.Client
}

// NewRedisOffsetStore creates a new RedisOffsetStore.
func NewRedisOffsetStore(client *redis.Client) *RedisOffsetStore {
	return &RedisOffsetStore{client: client}
}

// GetOffset returns the last saved offset, or 0 if none was saved.
func (s *RedisOffsetStore) GetOffset(ctx context.Context) (int64, error) {
	val, err := s.client.Get(ctx, pollingOffsetKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get polling offset: %w", err)
	}

	offset, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse polling offset: %w", err)
	}
	return offset, nil
}

// SaveOffset persists the current offset.
func (s *RedisOffsetStore) SaveOffset(ctx context.Context, offset int64) error {
	if err := s.client.Set(ctx, pollingOffsetKey, strconv.FormatInt(offset, 10), 0).Err(); err != nil {
		return fmt.Errorf("failed to save polling offset: %w", err)
	}
	return nil
}
