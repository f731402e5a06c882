package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"market-chat/internal/storage"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RoomSummary describes a room in the caller's room list.
// Product holds only ID when the listing is gone, LastMessage is nil for an empty room.
type RoomSummary struct {
	Room        storage.ChatRoom
	Product     storage.Product
	OtherUser   storage.User
	LastMessage *storage.Message
}

// Ledger appends and reads room messages, every call is gated by Authorize
type Ledger struct {
	logger     *zap.SugaredLogger
	rooms      RoomStore
	messages   MessageStore
	listings   Listings
	identities Identities
	now        func() time.Time
	fanOut     int
}

func NewLedger(logger *zap.SugaredLogger, rooms RoomStore, messages MessageStore, listings Listings, identities Identities, opts ...Option) *Ledger {
	o := defaultOptions(opts)
	return &Ledger{
		logger:     logger,
		rooms:      rooms,
		messages:   messages,
		listings:   listings,
		identities: identities,
		now:        o.now,
		fanOut:     o.fanOut,
	}
}

// OpenRoom loads room by id on behalf of user.
// Unknown ids give ErrRoomNotFound, rooms the user does not take part in give ErrNotParticipant.
func (l *Ledger) OpenRoom(ctx context.Context, roomID, user int64) (storage.ChatRoom, error) {
	room, err := l.rooms.ChatRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, storage.ErrChatNotExist) {
			return storage.ChatRoom{}, ErrRoomNotFound
		}
		return storage.ChatRoom{}, fmt.Errorf("loading chat room %d: %w", roomID, err)
	}

	if !Authorize(room, user) {
		return storage.ChatRoom{}, ErrNotParticipant
	}
	return room, nil
}

// Append stores a new message from sender in room.
// The store stamps created_at when it assigns the id, the ledger clock is only a lower bound.
func (l *Ledger) Append(ctx context.Context, room storage.ChatRoom, sender int64, content string) (storage.Message, error) {
	if !Authorize(room, sender) {
		return storage.Message{}, ErrNotParticipant
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return storage.Message{}, ErrEmptyContent
	}

	m, err := l.messages.CreateMessage(ctx, storage.Message{
		ChatRoomID: room.ID,
		SenderID:   sender,
		Content:    content,
		CreatedAt:  l.now(),
	})
	if err != nil {
		if errors.Is(err, storage.ErrMessageBadChat) {
			return storage.Message{}, ErrRoomNotFound
		}
		return storage.Message{}, fmt.Errorf("creating message: %w", err)
	}

	return m, nil
}

// List returns every message of room ordered by (created_at, id)
func (l *Ledger) List(ctx context.Context, room storage.ChatRoom, user int64) ([]storage.Message, error) {
	if !Authorize(room, user) {
		return nil, ErrNotParticipant
	}

	messages, err := l.messages.MessagesByChatRoom(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messageBefore(messages[i], messages[j])
	})

	return messages, nil
}

// ListRoomsForUser returns summaries of rooms where user is buyer or seller,
// newest room first
func (l *Ledger) ListRoomsForUser(ctx context.Context, user int64) ([]RoomSummary, error) {
	rooms, err := l.rooms.ChatRoomsByUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("listing chat rooms: %w", err)
	}

	sort.SliceStable(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
		}
		return rooms[i].ID > rooms[j].ID
	})

	summaries := make([]RoomSummary, len(rooms))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.fanOut)
	for i, room := range rooms {
		i, room := i, room
		g.Go(func() error {
			s, err := l.summarize(gctx, room, user)
			if err != nil {
				return err
			}
			summaries[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return summaries, nil
}

func (l *Ledger) summarize(ctx context.Context, room storage.ChatRoom, user int64) (RoomSummary, error) {
	s := RoomSummary{Room: room}

	product, err := l.listings.ProductByID(ctx, room.ProductID)
	switch {
	case err == nil:
		s.Product = product
	case errors.Is(err, storage.ErrProductNotExist):
		s.Product = storage.Product{ID: room.ProductID}
	default:
		return RoomSummary{}, fmt.Errorf("loading product %d: %w", room.ProductID, err)
	}

	otherID := OtherParticipant(room, user)
	other, err := l.identities.UserByID(ctx, otherID)
	switch {
	case err == nil:
		s.OtherUser = other
	case errors.Is(err, storage.ErrUserNotExist):
		s.OtherUser = storage.User{ID: otherID}
	default:
		return RoomSummary{}, fmt.Errorf("loading user %d: %w", otherID, err)
	}

	last, err := l.messages.LastMessage(ctx, room.ID)
	switch {
	case err == nil:
		s.LastMessage = &last
	case errors.Is(err, storage.ErrChatHasNoMessages):
	default:
		return RoomSummary{}, fmt.Errorf("loading last message of room %d: %w", room.ID, err)
	}

	return s, nil
}

func messageBefore(a, b storage.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
