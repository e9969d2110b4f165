package example

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/apistarter/apistarter/internal/errors"
	"github.com/apistarter/apistarter/internal/server/middleware"
	"github.com/apistarter/apistarter/internal/server/respond"
)

// Response messages.
const (
	MsgCreated      = "Example created successfully"
	MsgUpdated      = "Example updated successfully"
	MsgDeleted      = "Example deleted successfully"
	MsgNotFound     = "Example not found"
	MsgInvalidID    = "Example id must be a positive integer"
	MsgInvalidBody  = "Request body must be valid JSON"
	MsgValidation   = "Validation failed"
	MsgBodyTooLarge = "Request body too large"
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Handlers serves the example resource.
type Handlers struct {
	store    *Store
	validate *validator.Validate
}

// NewHandlers returns handlers backed by store.
func NewHandlers(store *Store) *Handlers {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handlers{store: store, validate: v}
}

// Routes mounts the resource on r. Returned errors go through funnel.
func (h *Handlers) Routes(funnel *middleware.Funnel) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/", funnel.Handle(h.List))
		r.Post("/", funnel.Handle(h.Create))
		r.Get("/{id}", funnel.Handle(h.Get))
		r.Put("/{id}", funnel.Handle(h.Update))
		r.Delete("/{id}", funnel.Handle(h.Delete))
	}
}

// List handles GET /.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) error {
	items := h.store.List()
	return respond.List(w, items, len(items))
}

// Get handles GET /{id}.
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) error {
	id, err := parseID(r)
	if err != nil {
		return err
	}
	item, err := h.store.Get(id)
	if err != nil {
		return notFoundOr(err)
	}
	return respond.Success(w, http.StatusOK, item, "")
}

// Create handles POST /.
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) error {
	var in Input
	if err := h.decode(r, &in); err != nil {
		return err
	}
	item := h.store.Create(in)
	return respond.Success(w, http.StatusCreated, item, MsgCreated)
}

// Update handles PUT /{id}.
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) error {
	id, err := parseID(r)
	if err != nil {
		return err
	}
	var p Patch
	if err := h.decode(r, &p); err != nil {
		return err
	}
	item, err := h.store.Update(id, p)
	if err != nil {
		return notFoundOr(err)
	}
	return respond.Success(w, http.StatusOK, item, MsgUpdated)
}

// Delete handles DELETE /{id}.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) error {
	id, err := parseID(r)
	if err != nil {
		return err
	}
	if err := h.store.Delete(id); err != nil {
		return notFoundOr(err)
	}
	return respond.Success(w, http.StatusOK, nil, MsgDeleted)
}

func parseID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 1 {
		return 0, apperrors.NewInvalidInputError(MsgInvalidID)
	}
	return id, nil
}

func notFoundOr(err error) error {
	if errors.Is(err, ErrNotFound) {
		return apperrors.NewNotFoundError(MsgNotFound)
	}
	return err
}

// decode reads and validates a JSON body into dst.
func (h *Handlers) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.WithStatus(
				apperrors.WrapInvalidInput(r.Context(), err, MsgBodyTooLarge),
				http.StatusRequestEntityTooLarge)
		}
		return apperrors.WithFields(apperrors.WrapInvalidInput(r.Context(), err, MsgInvalidBody),
			[]FieldError{{Field: "body", Message: err.Error()}})
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return apperrors.WrapInvalidInput(r.Context(), err, MsgValidation)
		}
		details := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, FieldError{Field: fe.Field(), Message: describe(fe)})
		}
		return apperrors.NewValidationError(MsgValidation, details)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must not be empty", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
