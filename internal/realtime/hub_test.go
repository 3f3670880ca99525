package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel records sends and can be told to fail.
type fakeChannel struct {
	mu       sync.Mutex
	messages [][]byte
	sendErr  error
	closed   bool
}

func (c *fakeChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.messages = append(c.messages, data)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.messages))
	copy(out, c.messages)
	return out
}

func completeEvent(mealID string) Event {
	return Event{
		MealID: mealID,
		Event:  EventAnalysisComplete,
		Data:   &AnalysisPayload{MealID: mealID, MealName: "Salad", VersionIndex: 1},
	}
}

func TestHubPublishToAllDevices(t *testing.T) {
	hub := NewHub()
	phone := &fakeChannel{}
	tablet := &fakeChannel{}
	hub.Register("alice", phone)
	hub.Register("alice", tablet)
	assert.Equal(t, 2, hub.ChannelCount("alice"))

	hub.Publish("alice", completeEvent("m1"))

	for _, ch := range []*fakeChannel{phone, tablet} {
		msgs := ch.received()
		require.Len(t, msgs, 1)
		var evt Event
		require.NoError(t, json.Unmarshal(msgs[0], &evt))
		assert.Equal(t, "m1", evt.MealID)
		assert.Equal(t, EventAnalysisComplete, evt.Event)
	}
}

func TestHubPublishTargetsOneUser(t *testing.T) {
	hub := NewHub()
	alice := &fakeChannel{}
	bob := &fakeChannel{}
	hub.Register("alice", alice)
	hub.Register("bob", bob)

	hub.Publish("alice", completeEvent("m1"))

	assert.Len(t, alice.received(), 1)
	assert.Empty(t, bob.received())
}

func TestHubPublishNobodyListening(t *testing.T) {
	hub := NewHub()
	// Must not panic or error; absent users catch up via sync.
	hub.Publish("ghost", completeEvent("m1"))
	assert.Equal(t, 0, hub.ChannelCount("ghost"))
}

func TestHubDropsDeadChannels(t *testing.T) {
	hub := NewHub()
	dead := &fakeChannel{sendErr: errors.New("broken pipe")}
	live := &fakeChannel{}
	hub.Register("alice", dead)
	hub.Register("alice", live)

	hub.Publish("alice", completeEvent("m1"))

	assert.Equal(t, 1, hub.ChannelCount("alice"))
	assert.True(t, dead.closed)
	assert.Len(t, live.received(), 1)

	// The survivor keeps receiving.
	hub.Publish("alice", completeEvent("m2"))
	assert.Len(t, live.received(), 2)
}

func TestHubUnregister(t *testing.T) {
	hub := NewHub()
	ch := &fakeChannel{}
	hub.Register("alice", ch)
	hub.Unregister("alice", ch)

	assert.Equal(t, 0, hub.ChannelCount("alice"))
	assert.True(t, ch.closed)

	hub.Publish("alice", completeEvent("m1"))
	assert.Empty(t, ch.received())
}

func TestHubConcurrentPublish(t *testing.T) {
	hub := NewHub()
	ch := &fakeChannel{}
	hub.Register("alice", ch)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Publish("alice", completeEvent("m1"))
		}()
	}
	wg.Wait()

	assert.Len(t, ch.received(), 10)
}
