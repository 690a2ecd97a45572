package hub

import (
	"encoding/json"
	"testing"

	"github.com/md-rashed-zaman/groombook/libs/changefeed"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishRoutesByScope(t *testing.T) {
	h := New(4, nil)
	biz := h.Subscribe(changefeed.BusinessScope("biz-1"))
	other := h.Subscribe(changefeed.BusinessScope("biz-2"))
	cust := h.Subscribe(changefeed.CustomerScope("cust-1"))
	defer biz.Close()
	defer other.Close()
	defer cust.Close()

	change := json.RawMessage(`{"op":"DELETE","previous":{"id":"a1"}}`)
	n := h.Publish(changefeed.TableAppointments, []changefeed.Scope{
		changefeed.BusinessScope("biz-1"),
		changefeed.CustomerScope("cust-1"),
	}, change)
	assert.Equal(t, 2, n)

	var msg changefeed.Message
	require.NoError(t, json.Unmarshal(<-biz.Frames(), &msg))
	assert.Equal(t, "appointments", msg.Table)
	assert.Equal(t, "business:biz-1", msg.Scope)
	assert.JSONEq(t, string(change), string(msg.Change))

	require.NoError(t, json.Unmarshal(<-cust.Frames(), &msg))
	assert.Equal(t, "customer:cust-1", msg.Scope)

	assert.Empty(t, other.Frames())
}

func TestSlowSubscriberIsDisconnected(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	h := New(1, m)
	slow := h.Subscribe(changefeed.RecipientScope("u1"))
	fast := h.Subscribe(changefeed.RecipientScope("u1"))
	defer slow.Close()
	defer fast.Close()

	scopes := []changefeed.Scope{changefeed.RecipientScope("u1")}
	assert.Equal(t, 2, h.Publish(changefeed.TableNotifications, scopes, json.RawMessage(`{"n":1}`)))
	<-fast.Frames()
	assert.Equal(t, 1, h.Publish(changefeed.TableNotifications, scopes, json.RawMessage(`{"n":2}`)))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Relayed.WithLabelValues("notifications")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dropped.WithLabelValues("notifications")))
	assert.Equal(t, 1, h.ClientCount())

	// The frame queued before the drop is still delivered, then the channel closes.
	var msg changefeed.Message
	frame, open := <-slow.Frames()
	require.True(t, open)
	require.NoError(t, json.Unmarshal(frame, &msg))
	assert.JSONEq(t, `{"n":1}`, string(msg.Change))
	_, open = <-slow.Frames()
	assert.False(t, open)

	<-fast.Frames()
	assert.Equal(t, 1, h.Publish(changefeed.TableNotifications, scopes, json.RawMessage(`{"n":3}`)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dropped.WithLabelValues("notifications")))
}

func TestCloseUnsubscribes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	h := New(1, m)
	c := h.Subscribe(changefeed.BusinessScope("biz-1"))
	assert.Equal(t, 1, h.ClientCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connected))

	c.Close()
	c.Close()
	assert.Equal(t, 0, h.ClientCount())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Connected))

	_, open := <-c.Frames()
	assert.False(t, open)
	assert.Equal(t, 0, h.Publish(changefeed.TableAppointments, []changefeed.Scope{changefeed.BusinessScope("biz-1")}, json.RawMessage(`{}`)))
}
