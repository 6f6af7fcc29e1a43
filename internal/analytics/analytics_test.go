package analytics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, message any) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

type EventSaverMock struct {
	mock.Mock
}

func (m *EventSaverMock) SaveEvent(ctx context.Context, e models.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func TestQueue_TrackDropsWhenFull(t *testing.T) {
	pub := new(PublisherMock)
	q := New(newNoopLogger(), pub, 2)

	q.Track(models.EventPaywallHit, "u1", nil)
	q.Track(models.EventPaywallHit, "u2", nil)
	q.Track(models.EventPaywallHit, "u3", nil)

	assert.Len(t, q.events, 2)
	first := <-q.events
	assert.Equal(t, "u1", first.UserUID)
	assert.NotEmpty(t, first.ID)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestQueue_RunPublishes(t *testing.T) {
	pub := new(PublisherMock)
	published := make(chan models.Event, 2)
	pub.On("Publish", mock.Anything, mock.AnythingOfType("models.Event")).
		Run(func(args mock.Arguments) { published <- args.Get(1).(models.Event) }).
		Return(errors.New("broker down")).Once()
	pub.On("Publish", mock.Anything, mock.AnythingOfType("models.Event")).
		Run(func(args mock.Arguments) { published <- args.Get(1).(models.Event) }).
		Return(nil).Once()

	q := New(newNoopLogger(), pub, 4)
	fixed := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return fixed }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Track(models.EventCheckoutStarted, "u1", map[string]any{"price_id": "price_1"})
	q.Track(models.EventPortalOpened, "u1", nil)

	var got []models.Event
	for range 2 {
		select {
		case e := <-published:
			got = append(got, e)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for publish")
		}
	}
	assert.Equal(t, models.EventCheckoutStarted, got[0].Name)
	assert.Equal(t, fixed, got[0].OccurredAt)
	assert.Equal(t, models.EventPortalOpened, got[1].Name, "a failed publish must not stop the worker")
}

func TestSink_Handle(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		setup   func(m *EventSaverMock)
		wantErr bool
	}{
		{
			name: "stored",
			body: `{"id":"e1","name":"paywall_hit","user_uid":"u1","occurred_at":"2026-10-01T12:00:00Z"}`,
			setup: func(m *EventSaverMock) {
				m.On("SaveEvent", mock.Anything, mock.MatchedBy(func(e models.Event) bool {
					return e.ID == "e1" && e.Name == models.EventPaywallHit && e.UserUID == "u1"
				})).Return(nil).Once()
			},
		},
		{
			name:    "invalid json",
			body:    `{`,
			setup:   func(*EventSaverMock) {},
			wantErr: true,
		},
		{
			name:    "missing name",
			body:    `{"id":"e1"}`,
			setup:   func(*EventSaverMock) {},
			wantErr: true,
		},
		{
			name: "storage error",
			body: `{"id":"e2","name":"checkout_started"}`,
			setup: func(m *EventSaverMock) {
				m.On("SaveEvent", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saver := new(EventSaverMock)
			tt.setup(saver)
			err := NewSink(newNoopLogger(), saver).Handle(context.Background(), []byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			saver.AssertExpectations(t)
		})
	}
}
