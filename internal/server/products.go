package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"market-chat/internal/media"
	"market-chat/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/valyala/fastjson"
)

var validate = validator.New()

type productInput struct {
	Name        string `validate:"required,max=200"`
	Description string `validate:"max=5000"`
	Price       int64  `validate:"gte=0"`
	Status      string `validate:"omitempty,oneof=selling sold"`
}

func (h *handler) writeProducts(w http.ResponseWriter, r *http.Request, products []storage.Product) {
	owners, err := h.store.UsersByIDs(r.Context(), ownerIDs(products))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, newProductResponses(products, owners))
}

func (h *handler) writeProduct(w http.ResponseWriter, r *http.Request, status int, p storage.Product) {
	owners, err := h.store.UsersByIDs(r.Context(), []int64{p.OwnerID})
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	h.writeJSON(w, r, status, newProductResponses([]storage.Product{p}, owners)[0])
}

// ownedProduct loads the product named by the path and checks the caller owns it
func (h *handler) ownedProduct(w http.ResponseWriter, r *http.Request) (storage.Product, bool) {
	id, ok := pathID(w, r, "product_id")
	if !ok {
		return storage.Product{}, false
	}

	p, err := h.store.ProductByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrProductNotExist) {
			httpError(w, http.StatusNotFound, "product not found")
			return storage.Product{}, false
		}
		h.internalError(w, r, err)
		return storage.Product{}, false
	}

	if p.OwnerID != claimsFromContext(r.Context()).UserID {
		httpError(w, http.StatusForbidden, "only the owner can change this product")
		return storage.Product{}, false
	}
	return p, true
}

// validationError writes 400 naming the first failed field
func validationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		httpError(w, http.StatusBadRequest, fmt.Sprintf("field %q failed %q validation", strings.ToLower(verrs[0].Field()), verrs[0].Tag()))
		return
	}
	httpError(w, http.StatusBadRequest, err.Error())
}

// listProducts handles HTTP requests on "GET /api/products"
func (h *handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.Products(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	h.writeProducts(w, r, products)
}

// getProduct handles HTTP requests on "GET /api/products/{product_id}"
func (h *handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "product_id")
	if !ok {
		return
	}

	p, err := h.store.ProductByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrProductNotExist) {
			httpError(w, http.StatusNotFound, "product not found")
			return
		}
		h.internalError(w, r, err)
		return
	}

	h.writeProduct(w, r, http.StatusOK, p)
}

// createProduct handles HTTP requests on "POST /api/products"
func (h *handler) createProduct(w http.ResponseWriter, r *http.Request) {
	parser, v, err := parseBody(&h.parsers.productPool, r)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer h.parsers.productPool.Put(parser)

	var in productInput
	var ok bool
	if in.Name, ok = stringField(w, v, "name"); !ok {
		return
	}
	if v.Exists("description") {
		if in.Description, ok = stringField(w, v, "description"); !ok {
			return
		}
	}
	if !v.Exists("price") {
		httpError(w, http.StatusBadRequest, "Missing Field \"price\"")
		return
	}
	if in.Price, ok = int64Field(w, v, "price"); !ok {
		return
	}
	in.Name = strings.TrimSpace(in.Name)

	if err := validate.Struct(in); err != nil {
		validationError(w, err)
		return
	}

	p, err := h.store.CreateProduct(r.Context(), storage.Product{
		OwnerID:     claimsFromContext(r.Context()).UserID,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Status:      storage.StatusSelling,
	})
	if err != nil {
		if errors.Is(err, storage.ErrUserNotExist) {
			httpError(w, http.StatusUnauthorized, "user no longer exists")
			return
		}
		h.internalError(w, r, err)
		return
	}

	h.writeProduct(w, r, http.StatusCreated, p)
}

// updateProduct handles HTTP requests on "PUT /api/products/{product_id}".
// Only fields present in the body are changed.
func (h *handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedProduct(w, r)
	if !ok {
		return
	}

	parser, v, err := parseBody(&h.parsers.productPool, r)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer h.parsers.productPool.Put(parser)

	patch, ok := productPatch(w, v)
	if !ok {
		return
	}

	updated, err := h.store.UpdateProduct(r.Context(), p.ID, patch)
	if err != nil {
		if errors.Is(err, storage.ErrProductNotExist) {
			httpError(w, http.StatusNotFound, "product not found")
			return
		}
		h.internalError(w, r, err)
		return
	}

	h.writeProduct(w, r, http.StatusOK, updated)
}

// productPatch builds a storage.ProductPatch from present fields, writing 400 on failure
func productPatch(w http.ResponseWriter, v *fastjson.Value) (storage.ProductPatch, bool) {
	var patch storage.ProductPatch
	// zero values pass validation for absent fields
	in := productInput{Name: "-"}

	if v.Exists("name") {
		name, ok := stringField(w, v, "name")
		if !ok {
			return patch, false
		}
		in.Name = strings.TrimSpace(name)
		patch.Name = storage.Some(in.Name)
	}
	if v.Exists("description") {
		description, ok := stringField(w, v, "description")
		if !ok {
			return patch, false
		}
		in.Description = description
		patch.Description = storage.Some(description)
	}
	if v.Exists("price") {
		price, ok := int64Field(w, v, "price")
		if !ok {
			return patch, false
		}
		in.Price = price
		patch.Price = storage.Some(price)
	}
	if v.Exists("status") {
		status, ok := stringField(w, v, "status")
		if !ok {
			return patch, false
		}
		if status == "" {
			httpError(w, http.StatusBadRequest, "field \"status\" must be one of selling, sold")
			return patch, false
		}
		in.Status = status
		patch.Status = storage.Some(status)
	}

	if patch.Empty() {
		httpError(w, http.StatusBadRequest, "No updatable fields provided")
		return patch, false
	}
	if err := validate.Struct(in); err != nil {
		validationError(w, err)
		return patch, false
	}
	return patch, true
}

// int64Field returns a required integer field, writing 400 when it is not an integer
func int64Field(w http.ResponseWriter, v *fastjson.Value, name string) (int64, bool) {
	n, err := v.Get(name).Int64()
	if err != nil {
		httpError(w, http.StatusBadRequest, "Field \""+name+"\" must be an integer")
		return 0, false
	}
	return n, true
}

// deleteProduct handles HTTP requests on "DELETE /api/products/{product_id}"
func (h *handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedProduct(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteProduct(r.Context(), p.ID); err != nil {
		if errors.Is(err, storage.ErrProductNotExist) {
			httpError(w, http.StatusNotFound, "product not found")
			return
		}
		h.internalError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// uploadImage handles HTTP requests on "POST /api/products/{product_id}/image"
func (h *handler) uploadImage(w http.ResponseWriter, r *http.Request) {
	if h.objects == nil {
		httpError(w, http.StatusServiceUnavailable, "Image storage is not configured")
		return
	}

	p, ok := h.ownedProduct(w, r)
	if !ok {
		return
	}

	// room for multipart framing around the image
	r.Body = http.MaxBytesReader(w, r.Body, h.maxImage+64<<10)
	file, _, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpError(w, http.StatusRequestEntityTooLarge, media.ErrTooLarge.Error())
			return
		}
		httpError(w, http.StatusBadRequest, "Multipart field \"image\" is required")
		return
	}
	defer file.Close()

	img, err := media.Read(file, h.maxImage)
	if err != nil {
		switch {
		case errors.Is(err, media.ErrUnsupportedMedia):
			httpError(w, http.StatusUnsupportedMediaType, err.Error())
		case errors.Is(err, media.ErrTooLarge):
			httpError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, media.ErrEmpty):
			httpError(w, http.StatusBadRequest, err.Error())
		default:
			h.internalError(w, r, err)
		}
		return
	}

	key := media.NewKey("products/"+strconv.FormatInt(p.ID, 10), img)
	if err := h.objects.Put(r.Context(), key, img); err != nil {
		h.internalError(w, r, err)
		return
	}

	updated, err := h.store.SetProductImage(r.Context(), p.ID, media.URL(key))
	if err != nil {
		if errors.Is(err, storage.ErrProductNotExist) {
			httpError(w, http.StatusNotFound, "product not found")
			return
		}
		h.internalError(w, r, err)
		return
	}

	h.writeProduct(w, r, http.StatusOK, updated)
}

// toggleWishlist handles HTTP requests on "POST /api/products/{product_id}/wishlist"
func (h *handler) toggleWishlist(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "product_id")
	if !ok {
		return
	}

	wishlisted, err := h.store.ToggleWishlist(r.Context(), claimsFromContext(r.Context()).UserID, id)
	if err != nil {
		if errors.Is(err, storage.ErrProductNotExist) {
			httpError(w, http.StatusNotFound, "product not found")
			return
		}
		h.internalError(w, r, err)
		return
	}

	var a fastjson.Arena
	o := a.NewObject()
	if wishlisted {
		o.Set("wishlisted", a.NewTrue())
	} else {
		o.Set("wishlisted", a.NewFalse())
	}
	writeRaw(w, http.StatusOK, o.MarshalTo(nil))
}

// serveUpload handles HTTP requests on "GET /uploads/{key...}"
func (h *handler) serveUpload(w http.ResponseWriter, r *http.Request) {
	if h.objects == nil {
		httpError(w, http.StatusServiceUnavailable, "Image storage is not configured")
		return
	}

	key := r.PathValue("key")
	if key == "" || strings.Contains(key, "..") {
		httpError(w, http.StatusNotFound, media.ErrObjectNotFound.Error())
		return
	}

	obj, err := h.objects.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, media.ErrObjectNotFound) {
			httpError(w, http.StatusNotFound, err.Error())
			return
		}
		h.internalError(w, r, err)
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", obj.ContentType)
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj); err != nil {
		h.logger.Errorf("streaming upload %s: %v", key, err)
	}
}
