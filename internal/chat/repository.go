// Package chat resolves buyer/seller chat rooms, guards access to them and keeps
// their append-only message ledgers.
package chat

import (
	"context"

	"market-chat/internal/storage"
)

// RoomStore persists chat rooms.
// CreateChatRoom must return storage.ErrChatExists when (product, buyer) is taken,
// lookups return storage.ErrChatNotExist.
type RoomStore interface {
	CreateChatRoom(ctx context.Context, room storage.ChatRoom) (storage.ChatRoom, error)
	ChatRoomByKey(ctx context.Context, product, buyer int64) (storage.ChatRoom, error)
	ChatRoomByID(ctx context.Context, id int64) (storage.ChatRoom, error)
	ChatRoomsByUser(ctx context.Context, user int64) ([]storage.ChatRoom, error)
}

// MessageStore persists messages.
// LastMessage returns storage.ErrChatHasNoMessages for an empty room.
type MessageStore interface {
	CreateMessage(ctx context.Context, m storage.Message) (storage.Message, error)
	MessagesByChatRoom(ctx context.Context, room int64) ([]storage.Message, error)
	LastMessage(ctx context.Context, room int64) (storage.Message, error)
}

// Listings reads products, storage.ErrProductNotExist for unknown ids
type Listings interface {
	ProductByID(ctx context.Context, id int64) (storage.Product, error)
}

// Identities reads users, storage.ErrUserNotExist for unknown ids
type Identities interface {
	UserByID(ctx context.Context, id int64) (storage.User, error)
}
