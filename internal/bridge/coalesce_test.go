package bridge

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/berth-dev/skiff/internal/session"
)

func TestCoalesceKeepsEveryUpdateInOrder(t *testing.T) {
	in := make(chan Update)
	go func() {
		defer close(in)
		for i := range 200 {
			in <- Update{Message: session.Message{Content: fmt.Sprint(i)}}
		}
	}()

	var got []string
	batches := 0
	for batch := range Coalesce(context.Background(), in, 5*time.Millisecond) {
		assert.NotEmpty(t, batch)
		batches++
		for _, u := range batch {
			got = append(got, u.Message.Content)
		}
	}

	assert.Len(t, got, 200)
	for i, c := range got {
		assert.Equal(t, fmt.Sprint(i), c)
	}
	assert.Less(t, batches, 200, "fast producers are batched")
}

func TestCoalesceWithoutInterval(t *testing.T) {
	in := make(chan Update, 3)
	for i := range 3 {
		in <- Update{Message: session.Message{Content: fmt.Sprint(i)}}
	}
	close(in)

	var got []string
	for batch := range Coalesce(context.Background(), in, 0) {
		for _, u := range batch {
			got = append(got, u.Message.Content)
		}
	}
	assert.Equal(t, []string{"0", "1", "2"}, got)
}

func TestCoalesceStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	out := Coalesce(ctx, make(chan Update), time.Millisecond)
	cancel()

	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("output not closed after cancel")
	}
}
