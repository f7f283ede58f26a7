package eventbus_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flywheel-gateway/control-plane/internal/adapter/eventbus"
	domainmessage "github.com/flywheel-gateway/control-plane/internal/domain/message"
	"github.com/flywheel-gateway/control-plane/internal/hub"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages []*message.Message
	fail     bool
}

func (p *recordingPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("publish failed")
	}
	p.messages = append(p.messages, messages...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

func TestDispatcher_PublishMirrorsOntoBus(t *testing.T) {
	pub := &recordingPublisher{}
	d := eventbus.NewDispatcher(nil, pub)

	msg := domainmessage.New("agent:output:a1", "output.chunk", map[string]any{"text": "hi"}, nil)
	require.NoError(t, d.Publish(context.Background(), msg))
	assert.Equal(t, 1, pub.count())
}

func TestDispatcher_TripsOpenAfterRepeatedFailures(t *testing.T) {
	pub := &recordingPublisher{fail: true}
	d := eventbus.NewDispatcher(nil, pub)
	msg := domainmessage.New("agent:output:a1", "output.chunk", "x", nil)

	for i := 0; i < 5; i++ {
		assert.Error(t, d.Publish(context.Background(), msg))
	}
	// circuit should now be open; the call still returns an error but
	// without reaching the underlying publisher again immediately.
	assert.Error(t, d.Publish(context.Background(), msg))
}

func TestMirroringPublisher_PublishesLocallyAndMirrors(t *testing.T) {
	h := hub.New(nil, hub.WithHeartbeatInterval(time.Hour), hub.WithCleanupInterval(time.Hour))
	t.Cleanup(h.Stop)
	pub := &recordingPublisher{}
	d := eventbus.NewDispatcher(nil, pub)
	mp := eventbus.NewMirroringPublisher(h, d)

	_, err := mp.Publish(context.Background(), "agent:output:a1", "output.chunk", "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, pub.count())
	assert.Equal(t, uint64(1), h.Stats().TotalMessages)
}
