package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name   string
	err    error
	events []string
	titles []string
}

func (f *fakeSender) Send(_ context.Context, event, title, _ string) error {
	f.events = append(f.events, event)
	f.titles = append(f.titles, title)
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersByEvent(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, []string{EventStranded}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), EventSettled, "settled", "body"))
	assert.Empty(t, sender.titles)

	require.NoError(t, n.Notify(context.Background(), EventStranded, "stranded", "body"))
	assert.Equal(t, []string{"stranded"}, sender.titles)
	assert.Equal(t, []string{EventStranded}, sender.events, "senders style by event type")
}

func TestNotifyEmptyEventListAllowsAll(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, nil, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "anything", "t", "b"))
	assert.Len(t, sender.titles, 1)
}

func TestNotifyContinuesPastFailingSender(t *testing.T) {
	bad := &fakeSender{name: "bad", err: errors.New("boom")}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), EventSettled, "t", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	// The failing sender must not block delivery to the others.
	assert.Len(t, good.titles, 1)
}

func TestNotifyNoSendersIsNoop(t *testing.T) {
	n := NewNotifier(nil, nil, discardLogger())
	assert.NoError(t, n.Notify(context.Background(), EventSettled, "t", "b"))
}

func TestEventStylingDistinguishesStrandedFunds(t *testing.T) {
	// Stranded funds must never look like a settled attempt in a channel.
	assert.NotEqual(t, eventMarker(EventSettled), eventMarker(EventStranded))
	assert.NotEqual(t, eventColor(EventSettled), eventColor(EventStranded))
	// Unknown events fall back to a neutral style rather than failing.
	assert.NotEmpty(t, eventMarker("unknown"))
	assert.NotZero(t, eventColor("unknown"))
}
