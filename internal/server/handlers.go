package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"market-chat/internal/auth"
	"market-chat/internal/chat"
	"market-chat/internal/media"
	"market-chat/internal/storage"
	"market-chat/internal/storage/zapadapter"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"
)

// Store is everything the HTTP layer reads and writes, implemented by *storage.Store
type Store interface {
	chat.RoomStore
	chat.MessageStore
	chat.Listings
	chat.Identities

	CreateUser(ctx context.Context, username, email, passwordHash string) (storage.User, error)
	UserByUsername(ctx context.Context, username string) (storage.User, error)
	UsersByIDs(ctx context.Context, ids []int64) (map[int64]storage.User, error)

	CreateProduct(ctx context.Context, p storage.Product) (storage.Product, error)
	Products(ctx context.Context) ([]storage.Product, error)
	ProductsByOwner(ctx context.Context, owner int64) ([]storage.Product, error)
	UpdateProduct(ctx context.Context, id int64, patch storage.ProductPatch) (storage.Product, error)
	SetProductImage(ctx context.Context, id int64, url string) (storage.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	ToggleWishlist(ctx context.Context, user, product int64) (bool, error)
	WishlistByUser(ctx context.Context, user int64) ([]storage.Product, error)

	Close()
}

// TokenService issues and checks bearer tokens, implemented by *auth.Tokens
type TokenService interface {
	Issue(user int64) (string, error)
	Verify(ctx context.Context, token string) (auth.Claims, error)
	Revoke(ctx context.Context, claims auth.Claims) error
}

// ObjectStore keeps uploaded images
type ObjectStore interface {
	Put(ctx context.Context, key string, img media.Image) error
	Open(ctx context.Context, key string) (media.Object, error)
}

// Limiter counts events per key, implemented by *ratelimit.FixedWindow
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type parsers struct {
	registerPool fastjson.ParserPool
	loginPool    fastjson.ParserPool
	productPool  fastjson.ParserPool
	messagePool  fastjson.ParserPool
}

type handler struct {
	logger   *zap.SugaredLogger
	store    Store
	tokens   TokenService
	resolver *chat.Resolver
	ledger   *chat.Ledger
	objects  ObjectStore
	limiter  Limiter
	maxImage int64
	parsers  parsers
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeRaw(w, http.StatusOK, []byte(`{"status":"healthy"}`))
}

// httpError writes {"error": reason} with provided status
func httpError(w http.ResponseWriter, status int, reason string) {
	var a fastjson.Arena
	o := a.NewObject()
	o.Set("error", a.NewString(reason))
	writeRaw(w, status, o.MarshalTo(nil))
}

func writeRaw(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func (h *handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

func (h *handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	id, _ := zapadapter.IDFromContext(r.Context())
	h.logger.Errorw("request failed", "request_id", id, "error", err)
	httpError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

// chatError maps chat error categories to HTTP statuses
func (h *handler) chatError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		httpError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chat.ErrForbidden):
		httpError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, chat.ErrInvalidOperation), errors.Is(err, chat.ErrInvalidInput):
		httpError(w, http.StatusBadRequest, err.Error())
	default:
		h.internalError(w, r, err)
	}
}

// pathID parses a positive integer path wildcard, writing 400 on failure
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 1 {
		httpError(w, http.StatusBadRequest, "Path parameter \""+name+"\" must be a valid id greater than zero")
		return 0, false
	}
	return id, true
}

// parseBody reads the request body with a pooled parser.
// enforceJSON has already checked that the body is valid JSON.
func parseBody(pool *fastjson.ParserPool, r *http.Request) (*fastjson.Parser, *fastjson.Value, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, nil, err
	}
	parser := pool.Get()
	v, err := parser.ParseBytes(body)
	if err != nil {
		pool.Put(parser)
		return nil, nil, err
	}
	if v.Type() != fastjson.TypeObject {
		pool.Put(parser)
		return nil, nil, errors.New("JSON body must be an object")
	}
	return parser, v, nil
}

// stringField returns a required string field, writing 400 when it is missing or not a string
func stringField(w http.ResponseWriter, v *fastjson.Value, name string) (string, bool) {
	if !v.Exists(name) {
		httpError(w, http.StatusBadRequest, "Missing Field \""+name+"\"")
		return "", false
	}
	b, err := v.Get(name).StringBytes()
	if err != nil {
		httpError(w, http.StatusBadRequest, "Field \""+name+"\" must be a string")
		return "", false
	}
	return string(b), true
}

// bearerToken extracts token from "Authorization: Bearer <token>"
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
