package flow

import (
	"github.com/helplane/support-widget/internal/model"
)

// Reconcile merges an authoritative message from the realtime feed into a
// locally held transcript.
//
// An incoming message that matches a pending optimistic echo (same sender
// kind, same content) replaces that echo in place, preserving the display
// position it was inserted at. Optimistic entries only ever exist for the
// local side's own sends. Everything else is inserted by creation
// timestamp so the rendered order stays consistent with a reload,
// whatever order the feed delivered in. Matching on content is a
// heuristic: two identical rapid customer messages collide and one echo
// is dropped from view until its authoritative row arrives.
func Reconcile(msgs []model.Message, incoming model.Message) []model.Message {
	for _, m := range msgs {
		if m.ID == incoming.ID {
			// Redelivery after a reconnect.
			return msgs
		}
	}

	for i, m := range msgs {
		if m.IsOptimistic() && m.SenderType == incoming.SenderType && m.Content == incoming.Content {
			out := append([]model.Message(nil), msgs...)
			out[i] = incoming
			return out
		}
	}

	return insertByCreation(msgs, incoming)
}

// insertByCreation inserts the message after the last entry whose creation
// time is not later, keeping the transcript in non-decreasing timestamp
// order.
func insertByCreation(msgs []model.Message, msg model.Message) []model.Message {
	idx := len(msgs)
	for idx > 0 && msgs[idx-1].CreatedAt.After(msg.CreatedAt) {
		idx--
	}

	out := make([]model.Message, 0, len(msgs)+1)
	out = append(out, msgs[:idx]...)
	out = append(out, msg)
	out = append(out, msgs[idx:]...)
	return out
}
