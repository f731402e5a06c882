package server

import (
	"time"

	"market-chat/internal/chat"
	"market-chat/internal/storage"

	"github.com/samber/lo"
)

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

type productRef struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	ImageURL *string `json:"image_url"`
}

type productResponse struct {
	ID          int64     `json:"id"`
	OwnerID     int64     `json:"owner_id"`
	Owner       string    `json:"owner"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int64     `json:"price"`
	ImageURL    *string   `json:"image_url"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type roomResponse struct {
	ID        int64      `json:"id"`
	Product   productRef `json:"product"`
	Buyer     string     `json:"buyer"`
	Seller    string     `json:"seller"`
	CreatedAt time.Time  `json:"created_at"`
}

type roomSummaryResponse struct {
	ID            int64      `json:"id"`
	Product       productRef `json:"product"`
	OtherUser     string     `json:"other_user"`
	LastMessage   *string    `json:"last_message"`
	LastMessageAt *time.Time `json:"last_message_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

type messageResponse struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	SenderID  int64     `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func imageURL(p storage.Product) *string {
	if p.ImageURL == "" {
		return nil
	}
	return lo.ToPtr(p.ImageURL)
}

func newProductRef(p storage.Product) productRef {
	return productRef{ID: p.ID, Name: p.Name, ImageURL: imageURL(p)}
}

func newProductResponses(products []storage.Product, owners map[int64]storage.User) []productResponse {
	return lo.Map(products, func(p storage.Product, _ int) productResponse {
		return productResponse{
			ID:          p.ID,
			OwnerID:     p.OwnerID,
			Owner:       owners[p.OwnerID].Username,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			ImageURL:    imageURL(p),
			Status:      p.Status,
			CreatedAt:   p.CreatedAt,
			UpdatedAt:   p.UpdatedAt,
		}
	})
}

func newRoomResponse(room storage.ChatRoom, product storage.Product, users map[int64]storage.User) roomResponse {
	return roomResponse{
		ID:        room.ID,
		Product:   newProductRef(product),
		Buyer:     users[room.BuyerID].Username,
		Seller:    users[room.SellerID].Username,
		CreatedAt: room.CreatedAt,
	}
}

func newRoomSummaryResponses(summaries []chat.RoomSummary) []roomSummaryResponse {
	return lo.Map(summaries, func(s chat.RoomSummary, _ int) roomSummaryResponse {
		out := roomSummaryResponse{
			ID:        s.Room.ID,
			Product:   newProductRef(s.Product),
			OtherUser: s.OtherUser.Username,
			CreatedAt: s.Room.CreatedAt,
		}
		if s.LastMessage != nil {
			out.LastMessage = lo.ToPtr(s.LastMessage.Content)
			out.LastMessageAt = lo.ToPtr(s.LastMessage.CreatedAt)
		}
		return out
	})
}

func newMessageResponse(m storage.Message, users map[int64]storage.User) messageResponse {
	return messageResponse{
		ID:        m.ID,
		Sender:    users[m.SenderID].Username,
		SenderID:  m.SenderID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

func newMessageResponses(messages []storage.Message, users map[int64]storage.User) []messageResponse {
	return lo.Map(messages, func(m storage.Message, _ int) messageResponse {
		return newMessageResponse(m, users)
	})
}

// ownerIDs returns distinct owners of products
func ownerIDs(products []storage.Product) []int64 {
	return lo.Uniq(lo.Map(products, func(p storage.Product, _ int) int64 { return p.OwnerID }))
}
