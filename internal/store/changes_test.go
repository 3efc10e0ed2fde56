package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChangeFeedFiltersByCollectionAndEvent(t *testing.T) {
	feed := NewChangeFeed()
	likes := feed.Subscribe(ChangeFilter{Collections: []Collection{CollectionLikes}, Events: []EventType{EventInsert}})
	everything := feed.Subscribe(ChangeFilter{})
	defer likes.Close()
	defer everything.Close()

	feed.Publish(ChangeEvent{Collection: CollectionLikes, Type: EventDelete})
	feed.Publish(ChangeEvent{Collection: CollectionLikes, Type: EventInsert})

	require.Len(t, likes.Events(), 1)
	require.Len(t, everything.Events(), 2)
}

func TestChangeFeedDropsWhenBufferFull(t *testing.T) {
	feed := NewChangeFeed()
	subscription := feed.Subscribe(ChangeFilter{})
	defer subscription.Close()

	for i := 0; i < defaultChangeBufferSize+5; i++ {
		feed.Publish(ChangeEvent{Collection: CollectionSignals, Type: EventInsert})
	}
	require.Len(t, subscription.Events(), defaultChangeBufferSize)
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	feed := NewChangeFeed()
	subscription := feed.Subscribe(ChangeFilter{})
	require.Equal(t, 1, feed.SubscriberCount())

	subscription.Close()
	subscription.Close()
	require.Equal(t, 0, feed.SubscriberCount())

	feed.Publish(ChangeEvent{Collection: CollectionSignals, Type: EventInsert})
	require.Len(t, subscription.Events(), 0)
	select {
	case <-subscription.Done():
	default:
		t.Fatalf("expected done to be closed")
	}
}
