// Package dispatch is the persist-then-deliver path for messages. Durable
// persistence is authoritative and unconditional; live delivery is a
// best-effort optimization on top — an offline recipient just picks the
// message up on the next history sync.
package dispatch

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ipsstech/pairtalk/internal/models"
	"github.com/ipsstech/pairtalk/internal/store"
)

// ErrPersistence wraps a failed durable write. The whole send aborts and the
// client must retry; nothing is delivered for a message that never persisted.
var ErrPersistence = errors.New("message persistence failed")

// Deliverer fans an event out to an identity's live connections. Satisfied by
// ws.Registry.
type Deliverer interface {
	Send(identity int64, event string, data any) bool
}

const senderLocks = 16

// Dispatcher persists messages and relays them to the recipient's live
// connections. Sends from one sender are serialized so a sender's messages
// persist, and therefore become visible, in submission order.
type Dispatcher struct {
	store     store.Store
	deliverer Deliverer

	mu [senderLocks]sync.Mutex
}

func New(st store.Store, deliverer Deliverer) *Dispatcher {
	return &Dispatcher{store: st, deliverer: deliverer}
}

// Send persists the message, then attempts live delivery. The returned
// message carries the store-assigned id and timestamp. The sender's own
// connections never receive a receiveMessage for a message they authored.
//
// The sender lock covers delivery as well as the durable write: delivery is
// non-blocking, and releasing between the two would let a concurrent send
// from the same sender emit its receiveMessage before an earlier-persisted
// one.
func (d *Dispatcher) Send(msg *models.Message) (*models.Message, error) {
	lock := &d.mu[uint64(msg.SenderID)%senderLocks]
	lock.Lock()
	defer lock.Unlock()

	saved, err := d.store.SaveMessage(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if saved.RecipientID != saved.SenderID {
		if !d.deliverer.Send(saved.RecipientID, models.EventReceiveMessage, saved) {
			// Normal offline branch: the recipient sees it on next sync.
			log.Debug().Int64("recipient", saved.RecipientID).Int64("message", saved.ID).Msg("recipient offline, stored only")
		}
	}
	return saved, nil
}

// RecordCall persists a call-record message for a finished call, with the
// duration recomputed server-side, and delivers it like any other message.
func (d *Dispatcher) RecordCall(caller, callee int64, duration time.Duration) (*models.Message, error) {
	msg := &models.Message{
		SenderID:    caller,
		RecipientID: callee,
		Content:     fmt.Sprintf("%d", int64(duration.Seconds())),
		Type:        models.TypeCallRecord,
		Encrypted:   false,
	}
	saved, err := d.Send(msg)
	if err != nil {
		// The call itself already ended cleanly; losing the record is a
		// logged defect, not a failure the participants can act on.
		log.Error().Err(err).Int64("caller", caller).Int64("callee", callee).Msg("persist call record")
		return nil, err
	}
	return saved, nil
}
