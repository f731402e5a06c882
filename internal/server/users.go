package server

import (
	"errors"
	"net/http"

	"market-chat/internal/auth"
	"market-chat/internal/storage"
)

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

// register handles HTTP requests on "POST /api/auth/register"
func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	parser, v, err := parseBody(&h.parsers.registerPool, r)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer h.parsers.registerPool.Put(parser)

	var reg auth.Registration
	var ok bool
	if reg.Username, ok = stringField(w, v, "username"); !ok {
		return
	}
	if reg.Email, ok = stringField(w, v, "email"); !ok {
		return
	}
	if reg.Password, ok = stringField(w, v, "password"); !ok {
		return
	}

	if err := reg.Validate(); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := auth.HashPassword(reg.Password)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	user, err := h.store.CreateUser(r.Context(), reg.Username, reg.Email, hash)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			httpError(w, http.StatusBadRequest, "Username or email is already taken")
			return
		}
		h.internalError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, userResponse{ID: user.ID, Username: user.Username})
}

// login handles HTTP requests on "POST /api/auth/login"
func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	parser, v, err := parseBody(&h.parsers.loginPool, r)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer h.parsers.loginPool.Put(parser)

	username, ok := stringField(w, v, "username")
	if !ok {
		return
	}
	password, ok := stringField(w, v, "password")
	if !ok {
		return
	}

	user, err := h.store.UserByUsername(r.Context(), username)
	if err != nil && !errors.Is(err, storage.ErrUserNotExist) {
		h.internalError(w, r, err)
		return
	}
	if err != nil || !auth.CheckPassword(user.PasswordHash, password) {
		httpError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, loginResponse{
		Token: token,
		User:  userResponse{ID: user.ID, Username: user.Username},
	})
}

// logout handles HTTP requests on "POST /api/auth/logout"
func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.tokens.Revoke(r.Context(), claimsFromContext(r.Context())); err != nil {
		h.internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// me handles HTTP requests on "GET /api/users/me"
func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.UserByID(r.Context(), claimsFromContext(r.Context()).UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotExist) {
			httpError(w, http.StatusNotFound, "user not found")
			return
		}
		h.internalError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, userResponse{ID: user.ID, Username: user.Username, Email: user.Email})
}

// myProducts handles HTTP requests on "GET /api/users/me/products"
func (h *handler) myProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ProductsByOwner(r.Context(), claimsFromContext(r.Context()).UserID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	h.writeProducts(w, r, products)
}

// myWishlist handles HTTP requests on "GET /api/users/me/wishlist"
func (h *handler) myWishlist(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.WishlistByUser(r.Context(), claimsFromContext(r.Context()).UserID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	h.writeProducts(w, r, products)
}
