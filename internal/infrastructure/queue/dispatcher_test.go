package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/learnhub/identity-service/internal/core/domain"
)

type recordingRepo struct {
	mu     sync.Mutex
	events []domain.AuthEvent
	block  chan struct{}
}

func (r *recordingRepo) InsertEvent(_ context.Context, e *domain.AuthEvent) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.events = append(r.events, *e)
	r.mu.Unlock()
	return nil
}

func (r *recordingRepo) snapshot() []domain.AuthEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AuthEvent(nil), r.events...)
}

func TestDispatcher_PersistsInOrderPerPrincipal(t *testing.T) {
	repo := &recordingRepo{}
	d := NewDispatcher(4, repo, zerolog.Nop())
	d.Start(context.Background())

	types := []domain.AuthEventType{domain.EventLoginFailed, domain.EventLoginFailed, domain.EventAccountLocked}
	for _, typ := range types {
		d.Publish(domain.AuthEvent{Type: typ, PrincipalID: "p-1", OccurredAt: time.Now()})
	}
	d.Publish(domain.AuthEvent{Type: domain.EventRateLimited, Source: "10.0.0.1"})
	d.Stop()

	var got []domain.AuthEventType
	for _, e := range repo.snapshot() {
		if e.PrincipalID == "p-1" {
			got = append(got, e.Type)
		}
	}
	if len(got) != len(types) {
		t.Fatalf("expected %d events for p-1, got %v", len(types), got)
	}
	for i := range types {
		if got[i] != types[i] {
			t.Fatalf("out of order: %v", got)
		}
	}
	if len(repo.snapshot()) != 4 {
		t.Errorf("expected the anonymous event too")
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	repo := &recordingRepo{block: make(chan struct{})}
	d := NewDispatcher(1, repo, zerolog.Nop())
	d.Start(context.Background())

	// one event in flight plus a full buffer; the rest must not block
	done := make(chan struct{})
	go func() {
		for range channelBuffer + 10 {
			d.Publish(domain.AuthEvent{Type: domain.EventLoginFailed, PrincipalID: "p-1"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full queue")
	}

	close(repo.block)
	d.Stop()
	if n := len(repo.snapshot()); n > channelBuffer+1 || n == 0 {
		t.Fatalf("expected at most %d persisted events, got %d", channelBuffer+1, n)
	}
}

func TestDispatcher_PublishAfterStopIsNoop(t *testing.T) {
	repo := &recordingRepo{}
	d := NewDispatcher(2, repo, zerolog.Nop())
	d.Start(context.Background())
	d.Stop()

	d.Publish(domain.AuthEvent{Type: domain.EventLoggedOut, PrincipalID: "p-1"})
	d.Stop()
	if n := len(repo.snapshot()); n != 0 {
		t.Fatalf("expected nothing persisted, got %d", n)
	}
}
