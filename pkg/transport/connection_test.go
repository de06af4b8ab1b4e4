package transport_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/wahyupambudi/chat-websocket/pkg/transport"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestConnection() (*transport.Connection, *sync.WaitGroup) {
	var wg sync.WaitGroup
	conn := transport.NewConnection(context.Background(), &wg, nil, transport.ConnectionConfig{}, newTestLogger())
	return conn, &wg
}

func TestSendAfterCloseIsDropped(t *testing.T) {
	conn, _ := newTestConnection()
	conn.Close(errors.New("peer went away"))

	// A broadcast loop may still hold this connection in its snapshot;
	// the late send must be a silent drop, not a panic.
	conn.Send([]byte("late frame"))
	conn.Send([]byte("another late frame"))

	select {
	case <-conn.Done():
	default:
		t.Error("Done channel not closed after Close")
	}
}

func TestSendDuringCloseIsDropped(t *testing.T) {
	conn, _ := newTestConnection()

	var senders sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		senders.Add(1)
		go func() {
			defer senders.Done()
			<-start
			for j := 0; j < 200; j++ {
				conn.Send([]byte("frame"))
			}
		}()
	}

	close(start)
	conn.Close(nil)
	senders.Wait()
}

func TestCloseIsIdempotent(t *testing.T) {
	closures := 0
	conn, wg := newTestConnection()
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		closures++
	})

	conn.Close(nil)
	conn.Close(errors.New("again"))

	if closures != 1 {
		t.Errorf("expected onClose to fire exactly once, fired %d times", closures)
	}
	wg.Wait()
}
