package catalog

import (
	"fmt"
	"net/http"

	resp "github.com/myupstage/visitationbook-backend/response"

	"github.com/go-chi/chi"
	"go.uber.org/zap"
)

// Service is the catalog API router
type Service struct {
	manager *Manager
	logger  *zap.Logger
}

// NewService will create an instance of the catalog API router
func NewService(logger *zap.Logger, manager *Manager) (*Service, error) {
	if manager == nil {
		return nil, fmt.Errorf("nil Manager is invalid")
	}
	if logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		manager: manager,
		logger:  logger,
	}, nil
}

func (s *Service) listBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.manager.List(r.Context(), true)
	if err != nil {
		s.logger.Error("Unable to list books",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the list of books"))
		return
	}
	resp.WriteResponse(w, r, books)
}

func (s *Service) getBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	book, err := s.manager.GetBook(r.Context(), id)
	if err != nil {
		s.logger.Error("Unable to get book",
			zap.String("BookID", id),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if book == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find book with specific ID"))
		return
	}
	resp.WriteResponse(w, r, book)
}

// Router will return the routes under catalog API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.listBooks)
	r.Get("/{id}", s.getBook)

	return r
}
