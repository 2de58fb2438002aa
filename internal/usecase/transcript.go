package usecase

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"arumi/internal/domain"
)

// transcriptLog is the append-only conversation transcript. Messages are
// never mutated or removed once appended; ordering is append order.
type transcriptLog struct {
	mu       sync.Mutex
	messages []domain.ChatMessage
}

func newTranscriptLog() *transcriptLog {
	return &transcriptLog{}
}

func (l *transcriptLog) Append(role domain.Role, content string, refs []domain.RAGReference, agent domain.AgentType) domain.ChatMessage {
	message := domain.ChatMessage{
		ID:         uuid.NewString(),
		Role:       role,
		Content:    content,
		References: refs,
		Agent:      agent,
		CreatedAt:  time.Now().UTC(),
	}

	l.mu.Lock()
	l.messages = append(l.messages, message)
	l.mu.Unlock()
	return message
}

// Restore replaces the transcript with stored history, filling in any
// identifiers the backend did not persist.
func (l *transcriptLog) Restore(messages []domain.ChatMessage) {
	restored := make([]domain.ChatMessage, len(messages))
	copy(restored, messages)
	for i := range restored {
		if restored[i].ID == "" {
			restored[i].ID = uuid.NewString()
		}
		if restored[i].CreatedAt.IsZero() {
			restored[i].CreatedAt = time.Now().UTC()
		}
	}

	l.mu.Lock()
	l.messages = restored
	l.mu.Unlock()
}

func (l *transcriptLog) Snapshot() []domain.ChatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()

	copied := make([]domain.ChatMessage, len(l.messages))
	copy(copied, l.messages)
	return copied
}

func (l *transcriptLog) CountRole(role domain.Role) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for _, message := range l.messages {
		if message.Role == role {
			count++
		}
	}
	return count
}
