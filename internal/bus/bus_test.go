package bus

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/sentinel/internal/models"
)

func eventMsg(cameraID string, dt models.DetectionType) Message {
	return Message{Kind: KindEvent, Event: &models.DetectionEvent{
		EventID:       "evt_20260314_103000_" + cameraID + "-1",
		CameraID:      cameraID,
		DetectionType: dt,
	}}
}

func collect(t *testing.T, sub *Subscription, n int) []Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var msgs []Message
	for i := 0; i < n; i++ {
		msg, ok := sub.Next(ctx)
		require.True(t, ok, "expected message %d", i)
		msgs = append(msgs, msg)
	}
	return msgs
}

func TestBus_FanOutToAllSubscribers(t *testing.T) {
	b := New(8)
	sub1 := b.Subscribe(Filter{})
	sub2 := b.Subscribe(Filter{})
	defer sub1.Close()
	defer sub2.Close()

	b.Publish(eventMsg("cam-01", models.DetectionIntrusion))

	for _, sub := range []*Subscription{sub1, sub2} {
		msgs := collect(t, sub, 1)
		assert.Equal(t, KindEvent, msgs[0].Kind)
		assert.Equal(t, "cam-01", msgs[0].Event.CameraID)
	}
}

func TestBus_CameraFilter(t *testing.T) {
	b := New(8)
	sub := b.Subscribe(Filter{CameraID: "cam-02"})
	defer sub.Close()

	b.Publish(eventMsg("cam-01", models.DetectionIntrusion))
	b.Publish(eventMsg("cam-02", models.DetectionIntrusion))

	msgs := collect(t, sub, 1)
	assert.Equal(t, "cam-02", msgs[0].Event.CameraID)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, ok := sub.Next(ctx)
	assert.False(t, ok, "filtered-out message must not be delivered")
}

func TestBus_TypeFilter(t *testing.T) {
	b := New(8)
	sub := b.Subscribe(Filter{Types: []models.DetectionType{models.DetectionLoitering}})
	defer sub.Close()

	b.Publish(eventMsg("cam-01", models.DetectionIntrusion))
	b.Publish(eventMsg("cam-01", models.DetectionLoitering))

	msgs := collect(t, sub, 1)
	assert.Equal(t, models.DetectionLoitering, msgs[0].Event.DetectionType)
}

func TestBus_MinRiskFilter(t *testing.T) {
	b := New(8)
	sub := b.Subscribe(Filter{MinRisk: models.RiskHigh})
	defer sub.Close()

	// Unmatched events carry no risk and are suppressed.
	b.Publish(eventMsg("cam-01", models.DetectionIntrusion))

	// Matched below the requested floor is suppressed too.
	low := eventMsg("cam-01", models.DetectionFaceMatch)
	lowID := uuid.New()
	low.Event.MatchedPersonID = &lowID
	low.MatchedRisk = models.RiskMedium
	b.Publish(low)

	critical := eventMsg("cam-01", models.DetectionFaceMatch)
	critID := uuid.New()
	critical.Event.MatchedPersonID = &critID
	critical.MatchedRisk = models.RiskCritical
	b.Publish(critical)

	msgs := collect(t, sub, 1)
	require.NotNil(t, msgs[0].Event.MatchedPersonID)
	assert.Equal(t, critID, *msgs[0].Event.MatchedPersonID)
}

func TestBus_SlowSubscriberGetsGapNotStall(t *testing.T) {
	b := New(2)
	slow := b.Subscribe(Filter{})
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			b.Publish(eventMsg("cam-01", models.DetectionIntrusion))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish must never block on a slow subscriber")
	}

	msgs := collect(t, slow, 3)
	assert.Equal(t, KindGap, msgs[0].Kind, "loss is surfaced before queued messages")
	assert.Equal(t, 8, msgs[0].Dropped)
	assert.Equal(t, KindEvent, msgs[1].Kind)
	assert.Equal(t, KindEvent, msgs[2].Kind)
}

func TestBus_GapDoesNotAffectOtherSubscribers(t *testing.T) {
	b := New(2)
	slow := b.Subscribe(Filter{})
	fast := b.Subscribe(Filter{})
	defer slow.Close()

	for i := 0; i < 5; i++ {
		b.Publish(eventMsg("cam-01", models.DetectionIntrusion))
		msg := collect(t, fast, 1)[0]
		assert.Equal(t, KindEvent, msg.Kind)
	}
	fast.Close()
}

func TestBus_StatusFollowsCameraFilter(t *testing.T) {
	b := New(8)
	sub := b.Subscribe(Filter{CameraID: "cam-07"})
	defer sub.Close()

	b.Publish(Message{Kind: KindStatus, Status: &StatusUpdate{
		EventID: "evt_20260314_103000_cam-01-1", CameraID: "cam-01",
	}})
	b.Publish(Message{Kind: KindStatus, Status: &StatusUpdate{
		EventID:           "evt_20260314_103000_cam-07-1",
		CameraID:          "cam-07",
		VerificationState: models.VerificationChainAnchored,
		LedgerTxID:        "tx-1",
	}})

	msgs := collect(t, sub, 1)
	require.Equal(t, KindStatus, msgs[0].Kind)
	assert.Equal(t, "cam-07", msgs[0].Status.CameraID)
	assert.Equal(t, models.VerificationChainAnchored, msgs[0].Status.VerificationState)
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	b := New(8)
	sub := b.Subscribe(Filter{})

	sub.Close()
	sub.Close()
	assert.Zero(t, b.SubscriberCount())

	// Publishing after close is a no-op, not a panic.
	b.Publish(eventMsg("cam-01", models.DetectionIntrusion))

	_, ok := sub.Next(context.Background())
	assert.False(t, ok)
}

func TestSubscription_NextHonorsContext(t *testing.T) {
	b := New(8)
	sub := b.Subscribe(Filter{})
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok := sub.Next(ctx)
	assert.False(t, ok)
}
