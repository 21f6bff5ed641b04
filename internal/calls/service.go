package calls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pveiga/skillswap/internal/backend"
	"github.com/pveiga/skillswap/internal/store"
	"go.uber.org/zap"
)

var ErrSelfCall = errors.New("cannot call yourself")

// meetingLink derives the room URL both sides join. The room name embeds
// the pair and the start time, so repeated calls between the same users
// get distinct rooms.
func meetingLink(caller, receiver string, at time.Time) string {
	return fmt.Sprintf("https://meet.jit.si/skillswap-%s-%s-%d", caller, receiver, at.Unix())
}

// Service issues the call writes. Status changes land back on every
// participant through the change feed; the service never mutates local
// state directly.
type Service struct {
	client *backend.Client
	logger *zap.Logger
}

func NewService(client *backend.Client, logger *zap.Logger) *Service {
	return &Service{client: client, logger: logger}
}

// Initiate creates a pending call to receiver and returns the row. The
// caller is implicitly accepted; the meeting opens for them once the
// receiver accepts.
func (s *Service) Initiate(ctx context.Context, caller, receiver string) (store.Call, error) {
	if caller == "" || receiver == "" {
		return store.Call{}, errors.New("caller and receiver ids are required")
	}
	if caller == receiver {
		return store.Call{}, ErrSelfCall
	}

	now := time.Now().UTC()
	row := store.Call{
		ID:             uuid.New().String(),
		CallerID:       caller,
		ReceiverID:     receiver,
		Link:           meetingLink(caller, receiver, now),
		Status:         store.CallPending,
		CallerAccepted: true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var out store.Call
	if err := s.client.Insert(ctx, backend.TableCalls, row, &out); err != nil {
		return store.Call{}, fmt.Errorf("initiate call: %w", err)
	}
	s.logger.Info("call initiated", zap.String("call_id", out.ID), zap.String("receiver", receiver))
	return out, nil
}

// Accept moves the call to accepted on behalf of the receiver.
func (s *Service) Accept(ctx context.Context, call store.Call) error {
	if err := Transition(call.Status, store.CallAccepted); err != nil {
		return err
	}
	return s.setStatus(ctx, call.ID, store.CallAccepted, map[string]any{"receiver_accepted": true})
}

// Reject declines a pending call.
func (s *Service) Reject(ctx context.Context, call store.Call) error {
	if err := Transition(call.Status, store.CallRejected); err != nil {
		return err
	}
	return s.setStatus(ctx, call.ID, store.CallRejected, nil)
}

// Complete marks an accepted call finished.
func (s *Service) Complete(ctx context.Context, call store.Call) error {
	if err := Transition(call.Status, store.CallCompleted); err != nil {
		return err
	}
	return s.setStatus(ctx, call.ID, store.CallCompleted, nil)
}

func (s *Service) setStatus(ctx context.Context, id, status string, extra map[string]any) error {
	patch := map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range extra {
		patch[k] = v
	}
	q := backend.NewQuery().Where(backend.Eq("id", id))
	if err := s.client.Update(ctx, backend.TableCalls, q, patch); err != nil {
		return fmt.Errorf("set call %s: %w", status, err)
	}
	return nil
}
