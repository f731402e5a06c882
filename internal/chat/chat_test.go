package chat_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"market-chat/internal/chat"
	"market-chat/internal/storage"
	mytesting "market-chat/internal/testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// tickingClock returns timestamps advancing by step on every call
func tickingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := now
		now = now.Add(step)
		return t
	}
}

type fixture struct {
	store    *mytesting.MemStore
	resolver *chat.Resolver
	ledger   *chat.Ledger
}

func bootstrap(t *testing.T, opts ...chat.Option) fixture {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	store := mytesting.NewMemStore()
	return fixture{
		store:    store,
		resolver: chat.NewResolver(logger.Sugar(), store, store, opts...),
		ledger:   chat.NewLedger(logger.Sugar(), store, store, store, store, opts...),
	}
}

func TestResolveOrCreateIdempotent(t *testing.T) {
	f := bootstrap(t)
	seller := mytesting.SeedUser(t, f.store)
	buyer := mytesting.SeedUser(t, f.store)
	p := mytesting.SeedProduct(t, f.store, seller.ID)

	first, err := f.resolver.ResolveOrCreate(context.Background(), p.ID, buyer.ID)
	require.NoError(t, err)
	require.Equal(t, buyer.ID, first.BuyerID)
	require.Equal(t, seller.ID, first.SellerID)
	require.Equal(t, p.ID, first.ProductID)

	second, err := f.resolver.ResolveOrCreate(context.Background(), p.ID, buyer.ID)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, f.store.RoomCount())
}

func TestResolveOrCreateSelfChat(t *testing.T) {
	f := bootstrap(t)
	seller := mytesting.SeedUser(t, f.store)
	p := mytesting.SeedProduct(t, f.store, seller.ID)

	_, err := f.resolver.ResolveOrCreate(context.Background(), p.ID, seller.ID)
	require.ErrorIs(t, err, chat.ErrSelfChat)
	require.ErrorIs(t, err, chat.ErrInvalidOperation)
	require.Equal(t, 0, f.store.RoomCount())
}

func TestResolveOrCreateUnknownProduct(t *testing.T) {
	f := bootstrap(t)
	buyer := mytesting.SeedUser(t, f.store)

	_, err := f.resolver.ResolveOrCreate(context.Background(), 404, buyer.ID)
	require.ErrorIs(t, err, chat.ErrProductNotFound)
	require.ErrorIs(t, err, chat.ErrNotFound)
}

func TestResolveOrCreateConflictReturnsWinner(t *testing.T) {
	f := bootstrap(t)
	seller := mytesting.SeedUser(t, f.store)
	buyer := mytesting.SeedUser(t, f.store)
	p := mytesting.SeedProduct(t, f.store, seller.ID)

	// a concurrent request inserts the room between lookup and insert
	var winner storage.ChatRoom
	f.store.BeforeCreateChatRoom = func(room storage.ChatRoom) {
		f.store.BeforeCreateChatRoom = nil
		var err error
		winner, err = f.store.CreateChatRoom(context.Background(), room)
		require.NoError(t, err)
	}

	room, err := f.resolver.ResolveOrCreate(context.Background(), p.ID, buyer.ID)
	require.NoError(t, err)
	require.Equal(t, winner.ID, room.ID)
	require.Equal(t, 1, f.store.RoomCount())
}

func TestResolveOrCreateConcurrent(t *testing.T) {
	f := bootstrap(t)
	seller := mytesting.SeedUser(t, f.store)
	buyer := mytesting.SeedUser(t, f.store)
	p := mytesting.SeedProduct(t, f.store, seller.ID)

	const n = 16
	ids := make(chan int64, n)
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			room, err := f.resolver.ResolveOrCreate(context.Background(), p.ID, buyer.ID)
			errs <- err
			ids <- room.ID
		}()
	}
	wg.Wait()
	close(ids)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	seen := make(map[int64]struct{})
	for id := range ids {
		seen[id] = struct{}{}
	}
	require.Len(t, seen, 1)
	require.Equal(t, 1, f.store.RoomCount())
}

func TestResolveOrCreateAfterOwnershipTransfer(t *testing.T) {
	f := bootstrap(t)
	seller := mytesting.SeedUser(t, f.store)
	buyer := mytesting.SeedUser(t, f.store)
	p := mytesting.SeedProduct(t, f.store, seller.ID)

	room, err := f.resolver.ResolveOrCreate(context.Background(), p.ID, buyer.ID)
	require.NoError(t, err)

	// buyer now owns the listing, the self-chat check uses current ownership
	f.store.SetProductOwner(p.ID, buyer.ID)
	_, err = f.resolver.ResolveOrCreate(context.Background(), p.ID, buyer.ID)
	require.ErrorIs(t, err, chat.ErrSelfChat)

	// the former owner is treated as buyer of a new room, the old room keeps its seller
	second, err := f.resolver.ResolveOrCreate(context.Background(), p.ID, seller.ID)
	require.NoError(t, err)
	require.NotEqual(t, room.ID, second.ID)
	require.Equal(t, seller.ID, second.BuyerID)
	require.Equal(t, buyer.ID, second.SellerID)

	stored, err := f.store.ChatRoomByID(context.Background(), room.ID)
	require.NoError(t, err)
	require.Equal(t, seller.ID, stored.SellerID)
}

// rejectingRooms fails inserts the way the buyer-not-seller check constraint does
type rejectingRooms struct {
	*mytesting.MemStore
}

func (rejectingRooms) CreateChatRoom(context.Context, storage.ChatRoom) (storage.ChatRoom, error) {
	return storage.ChatRoom{}, storage.ErrChatBadUsers
}

func TestResolveOrCreateCheckViolation(t *testing.T) {
	store := mytesting.NewMemStore()
	seller := mytesting.SeedUser(t, store)
	buyer := mytesting.SeedUser(t, store)
	p := mytesting.SeedProduct(t, store, seller.ID)

	resolver := chat.NewResolver(zap.NewNop().Sugar(), rejectingRooms{store}, store)

	_, err := resolver.ResolveOrCreate(context.Background(), p.ID, buyer.ID)
	require.ErrorIs(t, err, chat.ErrSelfChat)
	require.ErrorIs(t, err, chat.ErrInvalidOperation)
	require.Equal(t, 0, store.RoomCount())
}

func TestResolveOrCreateStoreFailure(t *testing.T) {
	f := bootstrap(t)
	f.store.Close()

	_, err := f.resolver.ResolveOrCreate(context.Background(), 1, 2)
	require.ErrorIs(t, err, mytesting.ErrClosed)
	require.False(t, errors.Is(err, chat.ErrNotFound))
}

func TestAuthorize(t *testing.T) {
	room := storage.ChatRoom{ID: 100, ProductID: 10, BuyerID: 2, SellerID: 1}

	require.True(t, chat.Authorize(room, 1))
	require.True(t, chat.Authorize(room, 2))
	require.False(t, chat.Authorize(room, 3))
	require.False(t, chat.Authorize(room, 0))

	require.Equal(t, int64(1), chat.OtherParticipant(room, 2))
	require.Equal(t, int64(2), chat.OtherParticipant(room, 1))
}

func TestOpenRoom(t *testing.T) {
	f := bootstrap(t)
	seller := mytesting.SeedUser(t, f.store)
	buyer := mytesting.SeedUser(t, f.store)
	stranger := mytesting.SeedUser(t, f.store)
	p := mytesting.SeedProduct(t, f.store, seller.ID)

	room, err := f.resolver.ResolveOrCreate(context.Background(), p.ID, buyer.ID)
	require.NoError(t, err)

	opened, err := f.ledger.OpenRoom(context.Background(), room.ID, seller.ID)
	require.NoError(t, err)
	require.Equal(t, room, opened)

	_, err = f.ledger.OpenRoom(context.Background(), room.ID, stranger.ID)
	require.ErrorIs(t, err, chat.ErrNotParticipant)
	require.ErrorIs(t, err, chat.ErrForbidden)

	_, err = f.ledger.OpenRoom(context.Background(), room.ID+1000, buyer.ID)
	require.ErrorIs(t, err, chat.ErrRoomNotFound)
}

func TestScenarioBuyerAndSellerExchange(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	f := bootstrap(t, chat.WithClock(tickingClock(start, time.Second)))
	a := mytesting.SeedUser(t, f.store)
	b := mytesting.SeedUser(t, f.store)
	c := mytesting.SeedUser(t, f.store)
	p := mytesting.SeedProduct(t, f.store, a.ID)

	room, err := f.resolver.ResolveOrCreate(context.Background(), p.ID, b.ID)
	require.NoError(t, err)
	require.Equal(t, b.ID, room.BuyerID)
	require.Equal(t, a.ID, room.SellerID)

	hi, err := f.ledger.Append(context.Background(), room, b.ID, "hi")
	require.NoError(t, err)
	hello, err := f.ledger.Append(context.Background(), room, a.ID, "hello")
	require.NoError(t, err)
	require.Greater(t, hello.ID, hi.ID)
	require.False(t, hello.CreatedAt.Before(hi.CreatedAt))

	for _, user := range []int64{a.ID, b.ID} {
		messages, err := f.ledger.List(context.Background(), room, user)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		require.Equal(t, "hi", messages[0].Content)
		require.Equal(t, "hello", messages[1].Content)
	}

	_, err = f.ledger.List(context.Background(), room, c.ID)
	require.ErrorIs(t, err, chat.ErrForbidden)

	again, err := f.resolver.ResolveOrCreate(context.Background(), p.ID, b.ID)
	require.NoError(t, err)
	require.Equal(t, room.ID, again.ID)
}

func TestAppendForbidden(t *testing.T) {
	f := bootstrap(t)
	seller := mytesting.SeedUser(t, f.store)
	buyer := mytesting.SeedUser(t, f.store)
	stranger := mytesting.SeedUser(t, f.store)
	p := mytesting.SeedProduct(t, f.store, seller.ID)

	room, err := f.resolver.ResolveOrCreate(context.Background(), p.ID, buyer.ID)
	require.NoError(t, err)

	_, err = f.ledger.Append(context.Background(), room, stranger.ID, "x")
	require.ErrorIs(t, err, chat.ErrNotParticipant)
	require.Equal(t, 0, f.store.MessageCount(room.ID))
}

func TestAppendEmptyContent(t *testing.T) {
	f := bootstrap(t)
	seller := mytesting.SeedUser(t, f.store)
	buyer := mytesting.SeedUser(t, f.store)
	p := mytesting.SeedProduct(t, f.store, seller.ID)

	room, err := f.resolver.ResolveOrCreate(context.Background(), p.ID, buyer.ID)
	require.NoError(t, err)

	for _, content := range []string{"", " ", "\n\t  "} {
		_, err = f.ledger.Append(context.Background(), room, buyer.ID, content)
		require.ErrorIs(t, err, chat.ErrEmptyContent)
		require.ErrorIs(t, err, chat.ErrInvalidInput)
	}
	require.Equal(t, 0, f.store.MessageCount(room.ID))

	m, err := f.ledger.Append(context.Background(), room, buyer.ID, "  still there?  ")
	require.NoError(t, err)
	require.Equal(t, "still there?", m.Content)
}

func TestListKeepsAppendOrder(t *testing.T) {
	// a frozen clock forces every timestamp to collide, order must fall back to id
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := bootstrap(t, chat.WithClock(func() time.Time { return frozen }))
	seller := mytesting.SeedUser(t, f.store)
	buyer := mytesting.SeedUser(t, f.store)
	p := mytesting.SeedProduct(t, f.store, seller.ID)

	room, err := f.resolver.ResolveOrCreate(context.Background(), p.ID, buyer.ID)
	require.NoError(t, err)

	var appended []int64
	for i := 0; i < 20; i++ {
		sender := buyer.ID
		if i%2 == 1 {
			sender = seller.ID
		}
		m, err := f.ledger.Append(context.Background(), room, sender, mytesting.RandString())
		require.NoError(t, err)
		appended = append(appended, m.ID)

		// every read observes a prefix-preserving extension of the previous one
		messages, err := f.ledger.List(context.Background(), room, buyer.ID)
		require.NoError(t, err)
		require.Len(t, messages, len(appended))
		for j, msg := range messages {
			require.Equal(t, appended[j], msg.ID)
		}
	}
}

func TestListPrefixStableUnderConcurrentAppends(t *testing.T) {
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Millisecond)

	// the held append takes the earlier timestamp but reaches the store last
	var hold atomic.Bool
	stamped := make(chan struct{})
	release := make(chan struct{})
	clock := func() time.Time {
		if hold.CompareAndSwap(true, false) {
			close(stamped)
			<-release
			return early
		}
		return late
	}

	f := bootstrap(t, chat.WithClock(clock))
	seller := mytesting.SeedUser(t, f.store)
	buyer := mytesting.SeedUser(t, f.store)
	p := mytesting.SeedProduct(t, f.store, seller.ID)

	room, err := f.resolver.ResolveOrCreate(context.Background(), p.ID, buyer.ID)
	require.NoError(t, err)

	hold.Store(true)
	held := make(chan storage.Message, 1)
	errs := make(chan error, 1)
	go func() {
		m, err := f.ledger.Append(context.Background(), room, buyer.ID, "first typed")
		errs <- err
		held <- m
	}()
	<-stamped

	second, err := f.ledger.Append(context.Background(), room, seller.ID, "first stored")
	require.NoError(t, err)

	before, err := f.ledger.List(context.Background(), room, buyer.ID)
	require.NoError(t, err)
	require.Len(t, before, 1)
	require.Equal(t, second.ID, before[0].ID)

	close(release)
	require.NoError(t, <-errs)
	first := <-held
	require.Greater(t, first.ID, second.ID)
	require.False(t, first.CreatedAt.Before(second.CreatedAt))

	after, err := f.ledger.List(context.Background(), room, buyer.ID)
	require.NoError(t, err)
	require.Len(t, after, 2)
	require.Equal(t, before[0].ID, after[0].ID)
	require.Equal(t, first.ID, after[1].ID)

	last, err := f.store.LastMessage(context.Background(), room.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, last.ID)
}

func TestListEmptyRoom(t *testing.T) {
	f := bootstrap(t)
	seller := mytesting.SeedUser(t, f.store)
	buyer := mytesting.SeedUser(t, f.store)
	p := mytesting.SeedProduct(t, f.store, seller.ID)

	room, err := f.resolver.ResolveOrCreate(context.Background(), p.ID, buyer.ID)
	require.NoError(t, err)

	messages, err := f.ledger.List(context.Background(), room, seller.ID)
	require.NoError(t, err)
	require.NotNil(t, messages)
	require.Empty(t, messages)
}

func TestListRoomsForUser(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	f := bootstrap(t, chat.WithClock(tickingClock(start, time.Minute)), chat.WithFanOut(2))
	seller := mytesting.SeedUser(t, f.store)
	stranger := mytesting.SeedUser(t, f.store)

	var (
		buyers  []storage.User
		roomIDs []int64
	)
	for i := 0; i < 3; i++ {
		buyer := mytesting.SeedUser(t, f.store)
		p := mytesting.SeedProduct(t, f.store, seller.ID)
		room, err := f.resolver.ResolveOrCreate(context.Background(), p.ID, buyer.ID)
		require.NoError(t, err)
		buyers = append(buyers, buyer)
		roomIDs = append(roomIDs, room.ID)
	}

	first, err := f.store.ChatRoomByID(context.Background(), roomIDs[0])
	require.NoError(t, err)
	_, err = f.ledger.Append(context.Background(), first, buyers[0].ID, "is it available?")
	require.NoError(t, err)
	_, err = f.ledger.Append(context.Background(), first, seller.ID, "yes")
	require.NoError(t, err)

	summaries, err := f.ledger.ListRoomsForUser(context.Background(), seller.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 3)

	got := make([]int64, 0, len(summaries))
	for _, s := range summaries {
		got = append(got, s.Room.ID)
	}
	require.Equal(t, mytesting.ReverseIDs(roomIDs), got)

	oldest := summaries[2]
	require.Equal(t, buyers[0].Username, oldest.OtherUser.Username)
	require.NotNil(t, oldest.LastMessage)
	require.Equal(t, "yes", oldest.LastMessage.Content)
	require.NotEmpty(t, oldest.Product.Name)
	require.Nil(t, summaries[0].LastMessage)

	buyerView, err := f.ledger.ListRoomsForUser(context.Background(), buyers[0].ID)
	require.NoError(t, err)
	require.Len(t, buyerView, 1)
	require.Equal(t, seller.Username, buyerView[0].OtherUser.Username)

	none, err := f.ledger.ListRoomsForUser(context.Background(), stranger.ID)
	require.NoError(t, err)
	require.Empty(t, none)
}
