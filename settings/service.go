package settings

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/zllovesuki/membergate/auth"
	resp "github.com/zllovesuki/membergate/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	Auth     *auth.Auth
	Settings Updater
	Logger   *zap.Logger
}

// Service is the settings API router for the administrative surface
type Service struct {
	ServiceOptions
	validate *validator.Validate
}

// NewService will create an instance of the settings API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if option.Settings == nil {
		return nil, fmt.Errorf("nil Settings is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
		validate:       validator.New(),
	}, nil
}

func (s *Service) getSettings(w http.ResponseWriter, r *http.Request) {
	resp.WriteResponse(w, r, s.Settings.Get(r.Context()))
}

func (s *Service) updateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req Settings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}

	if err := s.validate.Struct(req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Settings values are out of range").WithResult(err.Error()))
		return
	}

	if err := s.Settings.Update(ctx, req); err != nil {
		s.Logger.Error("Unable to update settings",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot update settings"))
		return
	}

	resp.WriteResponse(w, r, req)
}

// Router returns the routes managed by this Service
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.Auth.Middleware())
	r.Get("/", s.getSettings)
	r.Put("/", s.updateSettings)

	return r
}
