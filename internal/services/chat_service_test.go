package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	domain "github.com/muse-store/miniapp/internal/domain"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("msg-%d", n)
	}
}

func TestConciergeChatStartsWithGreeting(t *testing.T) {
	chat := NewConciergeChat(ConciergeChatDeps{Clock: fixedClock, IDGenerator: sequentialIDs()})
	msgs := chat.Messages()
	if len(msgs) != 1 || msgs[0].Role != domain.ChatRoleModel || msgs[0].Text != ConciergeGreeting {
		t.Fatalf("unexpected initial log %+v", msgs)
	}
}

func TestConciergeChatSendPassesHistoryWithoutNewMessage(t *testing.T) {
	var seen []domain.ChatMessage
	model := stubChatModel{sendFunc: func(_ context.Context, history []domain.ChatMessage, message string) (string, error) {
		seen = history
		if message != "Which bag fits a laptop?" {
			t.Fatalf("unexpected message %q", message)
		}
		return "The Muse Tote has a padded laptop compartment.", nil
	}}
	chat := NewConciergeChat(ConciergeChatDeps{Model: model, Clock: fixedClock, IDGenerator: sequentialIDs()})

	reply, err := chat.Send(context.Background(), "  <b>Which bag</b> fits a laptop?  ")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("expected history of 1 (greeting), got %d", len(seen))
	}
	if reply.Role != domain.ChatRoleModel || !strings.Contains(reply.Text, "laptop") {
		t.Fatalf("unexpected reply %+v", reply)
	}
	msgs := chat.Messages()
	if len(msgs) != 3 || msgs[1].Role != domain.ChatRoleUser || msgs[1].Text != "Which bag fits a laptop?" {
		t.Fatalf("unexpected log %+v", msgs)
	}
}

func TestConciergeChatKeepsUserMessageOnFailure(t *testing.T) {
	model := stubChatModel{sendFunc: func(context.Context, []domain.ChatMessage, string) (string, error) {
		return "", errors.New("upstream 503")
	}}
	chat := NewConciergeChat(ConciergeChatDeps{Model: model, Clock: fixedClock})

	if _, err := chat.Send(context.Background(), "hello"); !errors.Is(err, ErrChatUnavailable) {
		t.Fatalf("expected ErrChatUnavailable, got %v", err)
	}
	msgs := chat.Messages()
	if len(msgs) != 2 || msgs[1].Text != "hello" {
		t.Fatalf("expected user message to remain, got %+v", msgs)
	}
	if chat.Busy() {
		t.Fatal("chat must not stay busy after a failure")
	}
}

func TestConciergeChatRejectsConcurrentSend(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	model := stubChatModel{sendFunc: func(context.Context, []domain.ChatMessage, string) (string, error) {
		close(started)
		<-release
		return "ok", nil
	}}
	chat := NewConciergeChat(ConciergeChatDeps{Model: model})

	done := make(chan error, 1)
	go func() {
		_, err := chat.Send(context.Background(), "first")
		done <- err
	}()
	<-started

	if _, err := chat.Send(context.Background(), "second"); !errors.Is(err, ErrChatBusy) {
		t.Fatalf("expected ErrChatBusy, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first send: %v", err)
	}
}

func TestConciergeChatValidatesInput(t *testing.T) {
	chat := NewConciergeChat(ConciergeChatDeps{})
	if _, err := chat.Send(context.Background(), " \n\t "); !errors.Is(err, ErrValidationGuard) {
		t.Fatalf("expected validation guard for blank input, got %v", err)
	}
	if _, err := chat.Send(context.Background(), strings.Repeat("a", maxChatMessageLength+1)); !errors.Is(err, ErrValidationGuard) {
		t.Fatalf("expected validation guard for long input, got %v", err)
	}
	if _, err := chat.Send(context.Background(), "hi"); !errors.Is(err, ErrChatUnavailable) {
		t.Fatalf("expected ErrChatUnavailable without a model, got %v", err)
	}
}
