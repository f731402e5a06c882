package storage

import "time"

// Product statuses
const (
	StatusSelling = "selling"
	StatusSold    = "sold"
)

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type Product struct {
	ID          int64
	OwnerID     int64
	Name        string
	Description string
	Price       int64
	ImageURL    string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChatRoom is a two-party conversation about a single product.
// SellerID is the product owner at the moment the room was created.
type ChatRoom struct {
	ID        int64
	ProductID int64
	BuyerID   int64
	SellerID  int64
	CreatedAt time.Time
}

type Message struct {
	ID         int64
	ChatRoomID int64
	SenderID   int64
	Content    string
	CreatedAt  time.Time
}

// Optional holds a value that may be absent
type Optional[T any] struct {
	value T
	set   bool
}

// Some returns a present Optional holding v
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// Get returns the value and whether it is present
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

// ProductPatch is a partial product update: only present fields are written.
type ProductPatch struct {
	Name        Optional[string]
	Description Optional[string]
	Price       Optional[int64]
	Status      Optional[string]
}

// Empty reports whether the patch carries no fields
func (p ProductPatch) Empty() bool {
	return !p.Name.set && !p.Description.set && !p.Price.set && !p.Status.set
}

// Apply writes present fields of the patch onto product
func (p ProductPatch) Apply(product *Product) {
	if v, ok := p.Name.Get(); ok {
		product.Name = v
	}
	if v, ok := p.Description.Get(); ok {
		product.Description = v
	}
	if v, ok := p.Price.Get(); ok {
		product.Price = v
	}
	if v, ok := p.Status.Get(); ok {
		product.Status = v
	}
}
