package testing

import (
	"context"
	"testing"

	"market-chat/internal/storage"

	"github.com/stretchr/testify/require"
)

func TestReverseIDs(t *testing.T) {
	ids := []int64{1, 2, 3, 4}
	require.Equal(t, []int64{4, 3, 2, 1}, ReverseIDs(ids))
	require.Equal(t, []int64{1, 2, 3, 4}, ids)
	require.Empty(t, ReverseIDs(nil))
}

func TestRandString(t *testing.T) {
	require.Len(t, RandString(), 10)
	require.Len(t, RandStringN(3), 3)
}

func TestMemStoreDeleteProductCascades(t *testing.T) {
	s := NewMemStore()
	seller := SeedUser(t, s)
	buyer := SeedUser(t, s)
	p := SeedProduct(t, s, seller.ID)

	room, err := s.CreateChatRoom(context.Background(), storage.ChatRoom{ProductID: p.ID, BuyerID: buyer.ID, SellerID: seller.ID})
	require.NoError(t, err)
	_, err = s.ToggleWishlist(context.Background(), buyer.ID, p.ID)
	require.NoError(t, err)

	require.NoError(t, s.DeleteProduct(context.Background(), p.ID))

	_, err = s.ChatRoomByID(context.Background(), room.ID)
	require.Equal(t, storage.ErrChatNotExist, err)
	wishes, err := s.WishlistByUser(context.Background(), buyer.ID)
	require.NoError(t, err)
	require.Empty(t, wishes)
}

func TestMemStoreClosed(t *testing.T) {
	s := NewMemStore()
	s.Close()

	_, err := s.UserByID(context.Background(), 1)
	require.Equal(t, ErrClosed, err)
}
