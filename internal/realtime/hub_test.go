package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testClient(userID, tenantID uint) *Client {
	// No pumps are started in tests, so a nil conn is fine; events are read
	// straight off the send channel.
	return NewClient(nil, userID, tenantID)
}

func drain(c *Client) []Event {
	var events []Event
	for {
		select {
		case ev := <-c.send:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestBroadcastReachesRoomMembersOnly(t *testing.T) {
	h := NewHub(zap.NewNop())

	alice := testClient(1, 1)
	bob := testClient(2, 1)
	carol := testClient(3, 1)
	for _, c := range []*Client{alice, bob, carol} {
		h.Register(c)
	}
	h.Join(alice.ID(), ChannelRoom(10))
	h.Join(bob.ID(), ChannelRoom(10))
	// carol never joins channel 10

	h.Broadcast(1, ChannelRoom(10), Event{Event: EventMessageNew, Data: "hello"})

	require.Len(t, drain(alice), 1)
	require.Len(t, drain(bob), 1)
	assert.Empty(t, drain(carol))
}

func TestSenderOtherDevicesReceiveToo(t *testing.T) {
	h := NewHub(zap.NewNop())

	phone := testClient(1, 1)
	laptop := testClient(1, 1)
	h.Register(phone)
	h.Register(laptop)
	h.Join(phone.ID(), ChannelRoom(10))
	h.Join(laptop.ID(), ChannelRoom(10))

	h.Broadcast(1, ChannelRoom(10), Event{Event: EventMessageNew})

	assert.Len(t, drain(phone), 1)
	assert.Len(t, drain(laptop), 1)
}

func TestJoinUserSubscribesAllConnections(t *testing.T) {
	h := NewHub(zap.NewNop())

	phone := testClient(1, 1)
	laptop := testClient(1, 1)
	h.Register(phone)
	h.Register(laptop)

	// Membership added while the user is connected
	h.JoinUser(1, ChannelRoom(20))
	h.Broadcast(1, ChannelRoom(20), Event{Event: EventMemberAdded})

	assert.Len(t, drain(phone), 1)
	assert.Len(t, drain(laptop), 1)
}

func TestLeaveUserStopsDelivery(t *testing.T) {
	h := NewHub(zap.NewNop())

	c := testClient(1, 1)
	h.Register(c)
	h.Join(c.ID(), ChannelRoom(10))

	h.LeaveUser(1, ChannelRoom(10))
	h.Broadcast(1, ChannelRoom(10), Event{Event: EventMessageNew})

	assert.Empty(t, drain(c))
}

func TestUnregisterCleansUpRooms(t *testing.T) {
	h := NewHub(zap.NewNop())

	c := testClient(1, 1)
	h.Register(c)
	h.Join(c.ID(), ChannelRoom(10))
	h.Join(c.ID(), UserRoom(1))

	h.Unregister(c.ID())

	h.mu.RLock()
	defer h.mu.RUnlock()
	assert.Empty(t, h.clients)
	assert.Empty(t, h.rooms)
	assert.Empty(t, h.byUser)

	// Send channel is closed so the write pump would exit
	_, open := <-c.send
	assert.False(t, open)
}

func TestUnregisterUnknownConnectionIsNoop(t *testing.T) {
	h := NewHub(zap.NewNop())
	h.Unregister("no-such-connection")
}

func TestSlowConsumerDoesNotBlockBroadcast(t *testing.T) {
	h := NewHub(zap.NewNop())

	slow := testClient(1, 1)
	h.Register(slow)
	h.Join(slow.ID(), ChannelRoom(10))

	// Overflow the send buffer; the extra frames must be dropped, not block
	for i := 0; i < sendBuffer+10; i++ {
		h.Broadcast(1, ChannelRoom(10), Event{Event: EventMessageNew})
	}

	assert.Len(t, drain(slow), sendBuffer)
}

func TestUserRoomReachesEveryDeviceOfThatUser(t *testing.T) {
	h := NewHub(zap.NewNop())

	phone := testClient(7, 1)
	laptop := testClient(7, 1)
	other := testClient(8, 1)
	for _, c := range []*Client{phone, laptop, other} {
		h.Register(c)
	}
	// Every connection joins its owner's user room on connect
	h.Join(phone.ID(), UserRoom(7))
	h.Join(laptop.ID(), UserRoom(7))
	h.Join(other.ID(), UserRoom(8))

	h.Broadcast(1, UserRoom(7), Event{Event: EventMemberRemoved, Data: "removed"})

	require.Len(t, drain(phone), 1)
	require.Len(t, drain(laptop), 1)
	assert.Empty(t, drain(other))
}

func TestBridgeReceivesBroadcasts(t *testing.T) {
	h := NewHub(zap.NewNop())
	bridge := &recordingBridge{}
	h.SetBridge(bridge)

	h.Broadcast(7, ChannelRoom(10), Event{Event: EventMessageNew})

	require.Len(t, bridge.published, 1)
	assert.Equal(t, uint(7), bridge.published[0].tenantID)
	assert.Equal(t, ChannelRoom(10), bridge.published[0].room)
}

type publishedEvent struct {
	tenantID uint
	room     string
	ev       Event
}

type recordingBridge struct {
	published []publishedEvent
}

func (b *recordingBridge) Publish(tenantID uint, room string, ev Event) {
	b.published = append(b.published, publishedEvent{tenantID, room, ev})
}
