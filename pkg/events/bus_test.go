package events

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testBus(backlog int) *Bus {
	return NewBus(backlog, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// receive pops one event or fails the test after a timeout.
func receive(t *testing.T, sub *Subscription) Envelope {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed unexpectedly")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Envelope{}
	}
}

func TestSubscribeReceivesPublishedEvents(t *testing.T) {
	bus := testBus(0)
	defer bus.Close()

	sub, err := bus.Subscribe("lunar")
	require.NoError(t, err)
	defer bus.Unsubscribe(sub)

	bus.publish("lunar", "test_event", map[string]string{"k": "v"})

	ev := receive(t, sub)
	assert.Equal(t, "test_event", ev.Type)
	assert.JSONEq(t, `{"k":"v"}`, string(ev.Data))
}

func TestSubscribersAreIsolatedByProject(t *testing.T) {
	bus := testBus(0)
	defer bus.Close()

	lunar, err := bus.Subscribe("lunar")
	require.NoError(t, err)
	defer bus.Unsubscribe(lunar)
	mars, err := bus.Subscribe("mars")
	require.NoError(t, err)
	defer bus.Unsubscribe(mars)

	bus.publish("lunar", "only_lunar", map[string]string{})

	assert.Equal(t, "only_lunar", receive(t, lunar).Type)
	select {
	case ev := <-mars.Events():
		t.Fatalf("mars subscriber received foreign event %q", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBacklogDropsOldestOnOverflow(t *testing.T) {
	bus := testBus(4)
	defer bus.Close()

	sub, err := bus.Subscribe("lunar")
	require.NoError(t, err)
	defer bus.Unsubscribe(sub)

	for i := 1; i <= 6; i++ {
		bus.publish("lunar", fmt.Sprintf("event_%d", i), map[string]string{})
	}

	// The two oldest were evicted; the newest four remain in order.
	for i := 3; i <= 6; i++ {
		assert.Equal(t, fmt.Sprintf("event_%d", i), receive(t, sub).Type)
	}
	assert.Equal(t, uint64(2), sub.Dropped())
}

func TestOrderPreservedPerSubscriber(t *testing.T) {
	bus := testBus(16)
	defer bus.Close()

	sub, err := bus.Subscribe("lunar")
	require.NoError(t, err)
	defer bus.Unsubscribe(sub)

	for i := 0; i < 10; i++ {
		bus.publish("lunar", fmt.Sprintf("event_%d", i), map[string]string{})
	}
	for i := 0; i < 10; i++ {
		assert.Equal(t, fmt.Sprintf("event_%d", i), receive(t, sub).Type)
	}
}

func TestLateSubscriberSeesOnlyFutureEvents(t *testing.T) {
	bus := testBus(0)
	defer bus.Close()

	bus.publish("lunar", "before", map[string]string{})

	sub, err := bus.Subscribe("lunar")
	require.NoError(t, err)
	defer bus.Unsubscribe(sub)

	bus.publish("lunar", "after", map[string]string{})
	assert.Equal(t, "after", receive(t, sub).Type)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	bus := testBus(0)
	defer bus.Close()

	sub, err := bus.Subscribe("lunar")
	require.NoError(t, err)

	bus.Unsubscribe(sub)
	bus.Unsubscribe(sub)
	bus.Unsubscribe(nil)

	assert.Zero(t, bus.SubscriberCount("lunar"))

	// Publishing into a channel with no subscribers is a no-op.
	bus.publish("lunar", "into_the_void", map[string]string{})

	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestCloseProjectEndsSubscriptions(t *testing.T) {
	bus := testBus(0)
	defer bus.Close()

	sub, err := bus.Subscribe("lunar")
	require.NoError(t, err)
	other, err := bus.Subscribe("mars")
	require.NoError(t, err)
	defer bus.Unsubscribe(other)

	bus.publish("lunar", "last_event", map[string]string{})
	bus.CloseProject("lunar")

	// Buffered events drain before the close is observed.
	assert.Equal(t, "last_event", receive(t, sub).Type)
	_, open := <-sub.Events()
	assert.False(t, open)

	assert.Zero(t, bus.SubscriberCount("lunar"))
	assert.Equal(t, 1, bus.SubscriberCount("mars"))
}

func TestBusCloseRejectsNewSubscribers(t *testing.T) {
	bus := testBus(0)

	sub, err := bus.Subscribe("lunar")
	require.NoError(t, err)

	bus.Close()
	bus.Close() // safe to repeat

	_, open := <-sub.Events()
	assert.False(t, open)

	_, err = bus.Subscribe("lunar")
	assert.ErrorIs(t, err, ErrBusClosed)

	// Publishing after close is a silent no-op.
	bus.publish("lunar", "ignored", map[string]string{})
}
