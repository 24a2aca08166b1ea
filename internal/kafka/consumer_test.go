package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type commitLog struct {
	offsets []int64
}

func (c *commitLog) commit(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		c.offsets = append(c.offsets, m.Offset)
	}
	return nil
}

func testConsumer(cl *commitLog) *Consumer {
	return &Consumer{
		commit:     cl.commit,
		workers:    1,
		log:        zap.NewNop(),
		backoff:    time.Millisecond,
		maxBackoff: 2 * time.Millisecond,
	}
}

func TestHandleRetriesUntilSuccessThenCommits(t *testing.T) {
	cl := &commitLog{}
	c := testConsumer(cl)

	calls := 0
	h := func(context.Context, kafka.Message) error {
		calls++
		if calls < 3 {
			return errors.New("db down")
		}
		return nil
	}

	assert.True(t, c.handle(context.Background(), h, kafka.Message{Offset: 41}))
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int64{41}, cl.offsets)
}

func TestHandleLeavesOffsetWhenCancelled(t *testing.T) {
	cl := &commitLog{}
	c := testConsumer(cl)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	h := func(context.Context, kafka.Message) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("still down")
	}

	assert.False(t, c.handle(ctx, h, kafka.Message{Offset: 7}))
	assert.Empty(t, cl.offsets)
}

func TestLaneForKeepsPartitionOnOneWorker(t *testing.T) {
	assert.Equal(t, 1, laneFor(kafka.Message{Partition: 5}, 4))
	assert.Equal(t, laneFor(kafka.Message{Topic: "a", Partition: 2}, 3), laneFor(kafka.Message{Topic: "a", Partition: 2}, 3))
	assert.Equal(t, 0, laneFor(kafka.Message{Partition: -1}, 3))
}
