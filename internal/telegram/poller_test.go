package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/judge-helpdesk-bot/pkg/logger"
)

// fakeSource returns queued batches, then blocks until the context ends.
type fakeSource struct {
	mu      sync.Mutex
	batches [][]Update
	offsets []int64
	fail    int
}

func (f *fakeSource) GetUpdates(ctx context.Context, offset int64, _ int) ([]Update, error) {
	f.mu.Lock()
	f.offsets = append(f.offsets, offset)
	if f.fail > 0 {
		f.fail--
		f.mu.Unlock()
		return nil, errors.New("network down")
	}
	if len(f.batches) > 0 {
		batch := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return batch, nil
	}
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return nil, nil
	}
}

func (f *fakeSource) DeleteWebhook(context.Context) error { return nil }

func (f *fakeSource) seenOffsets() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.offsets...)
}

// recordingHandler records handled update IDs per user.
type recordingHandler struct {
	mu      sync.Mutex
	byUser  map[int64][]int64
	total   int
	panicOn int64
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{byUser: make(map[int64][]int64)}
}

func (h *recordingHandler) HandleUpdate(_ context.Context, u *Update) error {
	if u.UpdateID == h.panicOn {
		panic("boom")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byUser[u.Sender().ID] = append(h.byUser[u.Sender().ID], u.UpdateID)
	h.total++
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

func messageFrom(updateID, userID int64) Update {
	return Update{
		UpdateID: updateID,
		Message:  &Message{MessageID: updateID, From: &User{ID: userID}, Chat: &Chat{ID: userID}, Text: "hi"},
	}
}

func TestPoller_DispatchesInOrderPerUser(t *testing.T) {
	source := &fakeSource{batches: [][]Update{{
		messageFrom(1, 100), messageFrom(2, 200), messageFrom(3, 100),
		messageFrom(4, 300), messageFrom(5, 100), messageFrom(6, 200),
	}}}
	handler := newRecordingHandler()
	poller := NewPoller(source, handler, nil, 0, 3, logger.Nop())

	require.NoError(t, poller.Start(context.Background()))
	require.Eventually(t, func() bool { return handler.count() == 6 }, time.Second, 5*time.Millisecond)
	poller.Stop()

	assert.Equal(t, []int64{1, 3, 5}, handler.byUser[100])
	assert.Equal(t, []int64{2, 6}, handler.byUser[200])
	assert.Equal(t, []int64{4}, handler.byUser[300])

	// The next poll acknowledges the batch
	offsets := source.seenOffsets()
	require.GreaterOrEqual(t, len(offsets), 2)
	assert.Equal(t, int64(0), offsets[0])
	assert.Equal(t, int64(7), offsets[1])
}

func TestPoller_RecoversFromPanics(t *testing.T) {
	source := &fakeSource{batches: [][]Update{{messageFrom(1, 100), messageFrom(2, 100), messageFrom(3, 200)}}}
	handler := newRecordingHandler()
	handler.panicOn = 1
	poller := NewPoller(source, handler, nil, 0, 2, logger.Nop())

	require.NoError(t, poller.Start(context.Background()))
	require.Eventually(t, func() bool { return handler.count() == 2 }, time.Second, 5*time.Millisecond)
	poller.Stop()

	assert.Equal(t, []int64{2}, handler.byUser[100])
}

func TestPoller_RetriesAfterErrors(t *testing.T) {
	source := &fakeSource{fail: 1, batches: [][]Update{{messageFrom(1, 100)}}}
	handler := newRecordingHandler()
	poller := NewPoller(source, handler, nil, 0, 1, logger.Nop())
	poller.retryDelay = time.Millisecond

	require.NoError(t, poller.Start(context.Background()))
	require.Eventually(t, func() bool { return handler.count() == 1 }, time.Second, 5*time.Millisecond)
	poller.Stop()
}

func TestPoller_PersistsOffset(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewRedisOffsetStore(client)
	ctx := context.Background()

	require.NoError(t, store.SaveOffset(ctx, 41))

	source := &fakeSource{batches: [][]Update{{messageFrom(42, 100), messageFrom(43, 100)}}}
	handler := newRecordingHandler()
	poller := NewPoller(source, handler, store, 0, 2, logger.Nop())

	require.NoError(t, poller.Start(ctx))
	require.Eventually(t, func() bool {
		offset, err := store.GetOffset(ctx)
		return err == nil && offset == 43
	}, time.Second, 5*time.Millisecond)
	poller.Stop()

	assert.Equal(t, int64(42), source.seenOffsets()[0], "resumes after the stored offset")
	assert.Equal(t, 2, handler.count())
}

// cancelingHandler cancels the poll context once it has handled stopAfter.
type cancelingHandler struct {
	*recordingHandler
	stopAfter int64
	cancel    context.CancelFunc
}

func (h *cancelingHandler) HandleUpdate(ctx context.Context, u *Update) error {
	err := h.recordingHandler.HandleUpdate(ctx, u)
	if u.UpdateID == h.stopAfter {
		h.cancel()
	}
	return err
}

func TestPoller_ShutdownKeepsUnhandledUpdates(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewRedisOffsetStore(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := &fakeSource{batches: [][]Update{{
		messageFrom(10, 100), messageFrom(11, 100), messageFrom(12, 100), messageFrom(13, 100),
	}}}
	handler := &cancelingHandler{recordingHandler: newRecordingHandler(), stopAfter: 11, cancel: cancel}
	poller := NewPoller(source, handler, store, 0, 1, logger.Nop())

	poller.poll(ctx)

	assert.Equal(t, []int64{10, 11}, handler.byUser[100])
	assert.Equal(t, int64(11), poller.lastUpdateID)

	offset, err := store.GetOffset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(11), offset, "updates 12 and 13 are fetched again after restart")
}

func TestRedisOffsetStore_Empty(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	offset, err := NewRedisOffsetStore(client).GetOffset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), offset)
}
