package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"market-chat/internal/chat"
	"market-chat/internal/storage"
)

// openRoom handles HTTP requests on "POST /api/chat/room/{product_id}"
func (h *handler) openRoom(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(w, r, "product_id")
	if !ok {
		return
	}
	user := claimsFromContext(r.Context()).UserID

	room, err := h.resolver.ResolveOrCreate(r.Context(), productID, user)
	if err != nil {
		h.chatError(w, r, err)
		return
	}

	h.writeRoom(w, r, room)
}

// getRoom handles HTTP requests on "GET /api/chat/room/{room_id}"
func (h *handler) getRoom(w http.ResponseWriter, r *http.Request) {
	roomID, ok := pathID(w, r, "room_id")
	if !ok {
		return
	}

	room, err := h.ledger.OpenRoom(r.Context(), roomID, claimsFromContext(r.Context()).UserID)
	if err != nil {
		h.chatError(w, r, err)
		return
	}

	h.writeRoom(w, r, room)
}

func (h *handler) writeRoom(w http.ResponseWriter, r *http.Request, room storage.ChatRoom) {
	product, err := h.store.ProductByID(r.Context(), room.ProductID)
	if err != nil {
		if !errors.Is(err, storage.ErrProductNotExist) {
			h.internalError(w, r, err)
			return
		}
		product = storage.Product{ID: room.ProductID}
	}

	users, err := h.store.UsersByIDs(r.Context(), []int64{room.BuyerID, room.SellerID})
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, newRoomResponse(room, product, users))
}

// listRooms handles HTTP requests on "GET /api/chat/rooms"
func (h *handler) listRooms(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.ledger.ListRoomsForUser(r.Context(), claimsFromContext(r.Context()).UserID)
	if err != nil {
		h.chatError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, newRoomSummaryResponses(summaries))
}

// createMessage handles HTTP requests on "POST /api/chat/room/{room_id}/messages"
func (h *handler) createMessage(w http.ResponseWriter, r *http.Request) {
	roomID, ok := pathID(w, r, "room_id")
	if !ok {
		return
	}
	user := claimsFromContext(r.Context()).UserID

	room, err := h.ledger.OpenRoom(r.Context(), roomID, user)
	if err != nil {
		h.chatError(w, r, err)
		return
	}

	parser, v, err := parseBody(&h.parsers.messagePool, r)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	content, ok := stringField(w, v, "content")
	h.parsers.messagePool.Put(parser)
	if !ok {
		return
	}

	// rejected content does not use up the sender's quota
	if strings.TrimSpace(content) == "" {
		h.chatError(w, r, chat.ErrEmptyContent)
		return
	}

	if h.limiter != nil {
		allowed, err := h.limiter.Allow(r.Context(), "messages:"+strconv.FormatInt(user, 10))
		if err != nil {
			h.logger.Errorf("message rate limiter: %v", err)
			httpError(w, http.StatusServiceUnavailable, "Rate limiter unavailable")
			return
		}
		if !allowed {
			httpError(w, http.StatusTooManyRequests, "Too many messages, slow down")
			return
		}
	}

	m, err := h.ledger.Append(r.Context(), room, user, content)
	if err != nil {
		h.chatError(w, r, err)
		return
	}

	sender, err := h.store.UserByID(r.Context(), user)
	if err != nil {
		h.internalError(w, r, fmt.Errorf("loading sender: %w", err))
		return
	}

	h.writeJSON(w, r, http.StatusCreated, newMessageResponse(m, map[int64]storage.User{sender.ID: sender}))
}

// listMessages handles HTTP requests on "GET /api/chat/room/{room_id}/messages"
func (h *handler) listMessages(w http.ResponseWriter, r *http.Request) {
	roomID, ok := pathID(w, r, "room_id")
	if !ok {
		return
	}
	user := claimsFromContext(r.Context()).UserID

	room, err := h.ledger.OpenRoom(r.Context(), roomID, user)
	if err != nil {
		h.chatError(w, r, err)
		return
	}

	messages, err := h.ledger.List(r.Context(), room, user)
	if err != nil {
		h.chatError(w, r, err)
		return
	}

	users, err := h.store.UsersByIDs(r.Context(), []int64{room.BuyerID, room.SellerID})
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, newMessageResponses(messages, users))
}
