package chat

import "market-chat/internal/storage"

// Authorize reports whether user is one of the two participants of room
func Authorize(room storage.ChatRoom, user int64) bool {
	return user == room.BuyerID || user == room.SellerID
}

// OtherParticipant returns the participant of room that is not user
func OtherParticipant(room storage.ChatRoom, user int64) int64 {
	if user == room.BuyerID {
		return room.SellerID
	}
	return room.BuyerID
}
