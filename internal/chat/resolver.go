package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"market-chat/internal/storage"

	"go.uber.org/zap"
)

// Resolver finds or creates the single chat room of a (product, buyer) pair
type Resolver struct {
	logger   *zap.SugaredLogger
	rooms    RoomStore
	listings Listings
	now      func() time.Time
}

func NewResolver(logger *zap.SugaredLogger, rooms RoomStore, listings Listings, opts ...Option) *Resolver {
	o := defaultOptions(opts)
	return &Resolver{
		logger:   logger,
		rooms:    rooms,
		listings: listings,
		now:      o.now,
	}
}

// ResolveOrCreate returns the room where requester is the buyer of product, creating it on first call.
// The requester is always treated as buyer, the seller is the product owner at creation time.
func (r *Resolver) ResolveOrCreate(ctx context.Context, productID, requester int64) (storage.ChatRoom, error) {
	product, err := r.listings.ProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, storage.ErrProductNotExist) {
			return storage.ChatRoom{}, ErrProductNotFound
		}
		return storage.ChatRoom{}, fmt.Errorf("loading product %d: %w", productID, err)
	}

	// evaluated against current ownership even for rooms created earlier
	if product.OwnerID == requester {
		return storage.ChatRoom{}, ErrSelfChat
	}

	room, err := r.rooms.ChatRoomByKey(ctx, productID, requester)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, storage.ErrChatNotExist) {
		return storage.ChatRoom{}, fmt.Errorf("looking up chat room: %w", err)
	}

	room, err = r.rooms.CreateChatRoom(ctx, storage.ChatRoom{
		ProductID: productID,
		BuyerID:   requester,
		SellerID:  product.OwnerID,
		CreatedAt: r.now(),
	})
	switch {
	case err == nil:
		r.logger.Debugf("Opened chat room %d for product %d (buyer: %d, seller: %d)",
			room.ID, room.ProductID, room.BuyerID, room.SellerID)
		return room, nil
	case errors.Is(err, storage.ErrChatExists):
		// lost the race against a concurrent request for the same pair
		room, err = r.rooms.ChatRoomByKey(ctx, productID, requester)
		if err != nil {
			return storage.ChatRoom{}, fmt.Errorf("looking up chat room after conflict: %w", err)
		}
		return room, nil
	case errors.Is(err, storage.ErrProductNotExist):
		return storage.ChatRoom{}, ErrProductNotFound
	case errors.Is(err, storage.ErrChatBadUsers):
		return storage.ChatRoom{}, ErrSelfChat
	default:
		return storage.ChatRoom{}, fmt.Errorf("creating chat room: %w", err)
	}
}
