// Package history owns pagination and ordering when a client catches up on
// durable messages. Clients merge these pages with live-delivered messages by
// de-duplicating on the store-assigned message id.
package history

import (
	"github.com/ipsstech/pairtalk/internal/models"
	"github.com/ipsstech/pairtalk/internal/store"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Service struct {
	store store.Store
}

func New(st store.Store) *Service {
	return &Service{store: st}
}

// Page is one chronological slice of a conversation's messages.
type Page struct {
	Messages []models.Message `json:"messages"`
	HasMore  bool             `json:"hasMore"`
}

// Between returns up to pageSize messages between requester and peer,
// skipping the page*pageSize most recent, in ascending chronological order.
// Page zero is the newest slice. The store orders by (created_at, id) so a
// page boundary holds even while new messages arrive: inserts only shift the
// newest end, never the offsets already fetched.
func (s *Service) Between(requester, peer int64, page, pageSize int) (*Page, error) {
	if page < 0 {
		page = 0
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	messages, err := s.store.MessagesBetween(requester, peer, page*pageSize, pageSize)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountMessagesBetween(requester, peer)
	if err != nil {
		return nil, err
	}

	// The store hands back newest-first; the page reads oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	if messages == nil {
		messages = []models.Message{}
	}
	return &Page{
		Messages: messages,
		HasMore:  total > (page+1)*pageSize,
	}, nil
}

// ConversationsFor lists every conversation the identity participates in,
// newest activity first, each carrying its most recent message.
func (s *Service) ConversationsFor(identity int64) ([]models.Conversation, error) {
	return s.store.ConversationsFor(identity)
}
