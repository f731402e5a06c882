package testing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"market-chat/internal/storage"
)

// ErrClosed is returned by every MemStore call after Close
var ErrClosed = errors.New("memstore: closed")

type roomKey struct {
	product, buyer int64
}

type wish struct {
	seq       int64
	createdAt time.Time
}

// MemStore is an in-memory store honouring the error contract of storage.Store
type MemStore struct {
	mu sync.Mutex

	closed bool
	seq    int64

	users     map[int64]storage.User
	products  map[int64]storage.Product
	wishlists map[int64]map[int64]wish
	rooms     map[int64]storage.ChatRoom
	roomKeys  map[roomKey]int64
	messages  map[int64][]storage.Message

	// BeforeCreateChatRoom runs before the room is inserted, outside of the store lock
	BeforeCreateChatRoom func(room storage.ChatRoom)
}

func NewMemStore() *MemStore {
	return &MemStore{
		users:     make(map[int64]storage.User),
		products:  make(map[int64]storage.Product),
		wishlists: make(map[int64]map[int64]wish),
		rooms:     make(map[int64]storage.ChatRoom),
		roomKeys:  make(map[roomKey]int64),
		messages:  make(map[int64][]storage.Message),
	}
}

// Close makes subsequent calls fail with ErrClosed
func (s *MemStore) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *MemStore) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *MemStore) CreateUser(_ context.Context, username, email, passwordHash string) (storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.User{}, ErrClosed
	}

	for _, u := range s.users {
		if u.Username == username || u.Email == email {
			return storage.User{}, storage.ErrUserExists
		}
	}

	u := storage.User{
		ID:           s.nextID(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *MemStore) UserByID(_ context.Context, id int64) (storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.User{}, ErrClosed
	}

	u, ok := s.users[id]
	if !ok {
		return storage.User{}, storage.ErrUserNotExist
	}
	return u, nil
}

func (s *MemStore) UserByUsername(_ context.Context, username string) (storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.User{}, ErrClosed
	}

	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return storage.User{}, storage.ErrUserNotExist
}

func (s *MemStore) UsersByIDs(_ context.Context, ids []int64) (map[int64]storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	users := make(map[int64]storage.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			users[id] = u
		}
	}
	return users, nil
}

func (s *MemStore) CreateProduct(_ context.Context, p storage.Product) (storage.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.Product{}, ErrClosed
	}

	if _, ok := s.users[p.OwnerID]; !ok {
		return storage.Product{}, storage.ErrUserNotExist
	}

	p.ID = s.nextID()
	if p.Status == "" {
		p.Status = storage.StatusSelling
	}
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	s.products[p.ID] = p
	return p, nil
}

func (s *MemStore) ProductByID(_ context.Context, id int64) (storage.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.Product{}, ErrClosed
	}

	p, ok := s.products[id]
	if !ok {
		return storage.Product{}, storage.ErrProductNotExist
	}
	return p, nil
}

func (s *MemStore) Products(_ context.Context) ([]storage.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	return s.sortedProducts(func(storage.Product) bool { return true }), nil
}

func (s *MemStore) ProductsByOwner(_ context.Context, owner int64) ([]storage.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	return s.sortedProducts(func(p storage.Product) bool { return p.OwnerID == owner }), nil
}

func (s *MemStore) UpdateProduct(_ context.Context, id int64, patch storage.ProductPatch) (storage.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.Product{}, ErrClosed
	}

	p, ok := s.products[id]
	if !ok {
		return storage.Product{}, storage.ErrProductNotExist
	}
	patch.Apply(&p)
	p.UpdatedAt = time.Now().UTC()
	s.products[id] = p
	return p, nil
}

func (s *MemStore) SetProductImage(_ context.Context, id int64, url string) (storage.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.Product{}, ErrClosed
	}

	p, ok := s.products[id]
	if !ok {
		return storage.Product{}, storage.ErrProductNotExist
	}
	p.ImageURL = url
	p.UpdatedAt = time.Now().UTC()
	s.products[id] = p
	return p, nil
}

// SetProductOwner transfers product ownership, rooms keep their seller
func (s *MemStore) SetProductOwner(id, owner int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.products[id]
	p.OwnerID = owner
	s.products[id] = p
}

func (s *MemStore) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if _, ok := s.products[id]; !ok {
		return storage.ErrProductNotExist
	}
	delete(s.products, id)

	for _, wishes := range s.wishlists {
		delete(wishes, id)
	}
	for key, roomID := range s.roomKeys {
		if key.product == id {
			delete(s.roomKeys, key)
			delete(s.rooms, roomID)
			delete(s.messages, roomID)
		}
	}
	return nil
}

func (s *MemStore) ToggleWishlist(_ context.Context, user, product int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}

	if _, ok := s.users[user]; !ok {
		return false, storage.ErrUserNotExist
	}
	if _, ok := s.products[product]; !ok {
		return false, storage.ErrProductNotExist
	}

	wishes, ok := s.wishlists[user]
	if !ok {
		wishes = make(map[int64]wish)
		s.wishlists[user] = wishes
	}
	if _, ok := wishes[product]; ok {
		delete(wishes, product)
		return false, nil
	}
	wishes[product] = wish{seq: s.nextID(), createdAt: time.Now().UTC()}
	return true, nil
}

func (s *MemStore) WishlistByUser(_ context.Context, user int64) ([]storage.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	wishes := s.wishlists[user]
	products := make([]storage.Product, 0, len(wishes))
	for id := range wishes {
		products = append(products, s.products[id])
	}
	sort.Slice(products, func(i, j int) bool {
		return wishes[products[i].ID].seq > wishes[products[j].ID].seq
	})
	return products, nil
}

func (s *MemStore) CreateChatRoom(_ context.Context, room storage.ChatRoom) (storage.ChatRoom, error) {
	if s.BeforeCreateChatRoom != nil {
		s.BeforeCreateChatRoom(room)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ChatRoom{}, ErrClosed
	}

	if room.BuyerID == room.SellerID {
		return storage.ChatRoom{}, storage.ErrChatBadUsers
	}
	if _, ok := s.products[room.ProductID]; !ok {
		return storage.ChatRoom{}, storage.ErrProductNotExist
	}
	key := roomKey{product: room.ProductID, buyer: room.BuyerID}
	if _, ok := s.roomKeys[key]; ok {
		return storage.ChatRoom{}, storage.ErrChatExists
	}

	room.ID = s.nextID()
	s.rooms[room.ID] = room
	s.roomKeys[key] = room.ID
	return room, nil
}

func (s *MemStore) ChatRoomByKey(_ context.Context, product, buyer int64) (storage.ChatRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ChatRoom{}, ErrClosed
	}

	id, ok := s.roomKeys[roomKey{product: product, buyer: buyer}]
	if !ok {
		return storage.ChatRoom{}, storage.ErrChatNotExist
	}
	return s.rooms[id], nil
}

func (s *MemStore) ChatRoomByID(_ context.Context, id int64) (storage.ChatRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ChatRoom{}, ErrClosed
	}

	room, ok := s.rooms[id]
	if !ok {
		return storage.ChatRoom{}, storage.ErrChatNotExist
	}
	return room, nil
}

func (s *MemStore) ChatRoomsByUser(_ context.Context, user int64) ([]storage.ChatRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	rooms := make([]storage.ChatRoom, 0)
	for _, r := range s.rooms {
		if r.BuyerID == user || r.SellerID == user {
			rooms = append(rooms, r)
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
		}
		return rooms[i].ID > rooms[j].ID
	})
	return rooms, nil
}

func (s *MemStore) CreateMessage(_ context.Context, m storage.Message) (storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.Message{}, ErrClosed
	}

	if _, ok := s.rooms[m.ChatRoomID]; !ok {
		return storage.Message{}, storage.ErrMessageBadChat
	}
	if _, ok := s.users[m.SenderID]; !ok {
		return storage.Message{}, storage.ErrMessageBadAuthor
	}

	// stamped together with the id, never before the room's latest message
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if n := len(s.messages[m.ChatRoomID]); n > 0 {
		if last := s.messages[m.ChatRoomID][n-1].CreatedAt; m.CreatedAt.Before(last) {
			m.CreatedAt = last
		}
	}
	m.ID = s.nextID()
	s.messages[m.ChatRoomID] = append(s.messages[m.ChatRoomID], m)
	return m, nil
}

func (s *MemStore) MessagesByChatRoom(_ context.Context, room int64) ([]storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	messages := make([]storage.Message, len(s.messages[room]))
	copy(messages, s.messages[room])
	sort.SliceStable(messages, func(i, j int) bool {
		if !messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].CreatedAt.Before(messages[j].CreatedAt)
		}
		return messages[i].ID < messages[j].ID
	})
	return messages, nil
}

func (s *MemStore) LastMessage(ctx context.Context, room int64) (storage.Message, error) {
	messages, err := s.MessagesByChatRoom(ctx, room)
	if err != nil {
		return storage.Message{}, err
	}
	if len(messages) == 0 {
		return storage.Message{}, storage.ErrChatHasNoMessages
	}
	return messages[len(messages)-1], nil
}

// MessageCount returns number of stored messages in room
func (s *MemStore) MessageCount(room int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[room])
}

// RoomCount returns number of stored rooms
func (s *MemStore) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func (s *MemStore) sortedProducts(keep func(storage.Product) bool) []storage.Product {
	products := make([]storage.Product, 0, len(s.products))
	for _, p := range s.products {
		if keep(p) {
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool {
		if !products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].CreatedAt.After(products[j].CreatedAt)
		}
		return products[i].ID > products[j].ID
	})
	return products
}
