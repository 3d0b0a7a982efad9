package grant

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"strconv"
	"time"

	"github.com/zllovesuki/membergate/auth"
	"github.com/zllovesuki/membergate/checkout"
	"github.com/zllovesuki/membergate/messaging"
	resp "github.com/zllovesuki/membergate/response"

	"github.com/go-chi/chi"
	"go.uber.org/zap"
)

// webhookBodyLimit bounds the inbound payment event payload
const webhookBodyLimit = 1 << 20

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	Auth          *auth.Auth
	Store         Store
	Activator     *Activator
	Task          *Task
	Messenger     messaging.Messenger
	Issuer        CheckoutIssuer
	WebhookSecret string
	Logger        *zap.Logger
}

// Service is the grant API router: the inbound payment event endpoint plus the
// administrative surface (stats, listing, forced sweep, broadcast)
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the grant API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if option.Store == nil {
		return nil, fmt.Errorf("nil Store is invalid")
	}
	if option.Activator == nil {
		return nil, fmt.Errorf("nil Activator is invalid")
	}
	if option.Task == nil {
		return nil, fmt.Errorf("nil Task is invalid")
	}
	if option.Messenger == nil {
		return nil, fmt.Errorf("nil Messenger is invalid")
	}
	if option.Issuer == nil {
		return nil, fmt.Errorf("nil Issuer is invalid")
	}
	if len(option.WebhookSecret) == 0 {
		return nil, fmt.Errorf("empty WebhookSecret is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

// handleWebhook accepts the raw payment-provider payload. Anything that fails
// verification is rejected before any state mutation; a storage failure returns
// a non-2xx status so the provider redelivers.
func (s *Service) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := ioutil.ReadAll(r.Body)
	if err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Cannot read event payload"))
		return
	}

	evt, err := checkout.ParseEvent(payload, r.Header.Get("Stripe-Signature"), s.WebhookSecret)
	if errors.Is(err, checkout.ErrInvalidSignature) {
		s.Logger.Warn("Rejecting payment event with invalid signature")
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid signature"))
		return
	}
	if errors.Is(err, checkout.ErrMissingCorrelation) {
		s.Logger.Warn("Rejecting payment event without subscriber correlation")
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Event has no subscriber correlation"))
		return
	}
	if err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Cannot parse event payload"))
		return
	}
	if evt == nil {
		// verified but irrelevant event type, acknowledge and move on
		resp.WriteResponse(w, r, nil)
		return
	}

	g, err := s.Activator.Process(ctx, evt)
	if err != nil {
		s.Logger.Error("Unable to process payment event",
			zap.String("EventID", evt.EventID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot process payment event"))
		return
	}

	resp.WriteResponse(w, r, g)
}

// SubscribeRequest is the public request to start a subscription
type SubscribeRequest struct {
	SubscriberID int64  `json:"subscriberId"`
	DisplayName  string `json:"displayName"`
}

// SubscribeResult carries either the subscriber's current grant or a checkout link
type SubscribeResult struct {
	Grant       *Grant `json:"grant,omitempty"`
	CheckoutURL string `json:"checkoutUrl,omitempty"`
}

// subscribe is the acquisition entry point: an active subscriber sees their current
// access window, everyone else gets a fresh checkout link
func (s *Service) subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if req.SubscriberID == 0 {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Subscriber id is required"))
		return
	}

	g, err := s.Store.Get(ctx, req.SubscriberID)
	if err != nil {
		s.Logger.Error("Unable to query grant",
			zap.Int64("SubscriberID", req.SubscriberID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot query subscription state"))
		return
	}
	if g != nil && g.EndTime.After(time.Now().UTC()) {
		resp.WriteResponse(w, r, SubscribeResult{Grant: g})
		return
	}

	session, err := s.Issuer.CreateSession(ctx, req.SubscriberID, req.DisplayName)
	if err != nil {
		s.Logger.Error("Unable to create checkout session",
			zap.Int64("SubscriberID", req.SubscriberID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot create checkout session"))
		return
	}

	resp.WriteResponse(w, r, SubscribeResult{CheckoutURL: session.URL})
}

func (s *Service) listGrants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	grants, err := s.Store.List(ctx)
	if err != nil {
		s.Logger.Error("Unable to list grants",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot list grants"))
		return
	}

	resp.WriteResponse(w, r, grants)
}

func (s *Service) getGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subscriberID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Subscriber id must be numeric"))
		return
	}

	g, err := s.Store.Get(ctx, subscriberID)
	if err != nil {
		s.Logger.Error("Unable to query grant",
			zap.Int64("SubscriberID", subscriberID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get grant"))
		return
	}
	if g == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("No grant for this subscriber"))
		return
	}

	resp.WriteResponse(w, r, g)
}

func (s *Service) getStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := s.Store.Stats(ctx, time.Now().UTC())
	if err != nil {
		s.Logger.Error("Unable to compute stats",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot compute stats"))
		return
	}

	resp.WriteResponse(w, r, stats)
}

func (s *Service) forceReconcile(w http.ResponseWriter, r *http.Request) {
	s.Task.Trigger()
	resp.WriteResponse(w, r, nil)
}

// BroadcastRequest is the admin request to message every grant holder
type BroadcastRequest struct {
	Text string `json:"text"`
}

// BroadcastResult reports how many subscribers the message reached
type BroadcastResult struct {
	Delivered int `json:"delivered"`
	Total     int `json:"total"`
}

func (s *Service) broadcast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if len(req.Text) == 0 {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Broadcast text cannot be empty"))
		return
	}

	grants, err := s.Store.List(ctx)
	if err != nil {
		s.Logger.Error("Unable to list grants for broadcast",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot list grants"))
		return
	}

	result := BroadcastResult{Total: len(grants)}
	for _, g := range grants {
		if err := s.Messenger.SendMessage(ctx, g.SubscriberID, req.Text, nil); err != nil {
			s.Logger.Warn("Cannot deliver broadcast message",
				zap.Int64("SubscriberID", g.SubscriberID),
				zap.Error(err),
			)
			continue
		}
		result.Delivered++
	}

	resp.WriteResponse(w, r, result)
}

// Router returns the routes managed by this Service
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/webhook", s.handleWebhook)
	r.Post("/subscribe", s.subscribe)

	r.Group(func(r chi.Router) {
		r.Use(s.Auth.Middleware())
		r.Get("/grants", s.listGrants)
		r.Get("/grants/stats", s.getStats)
		r.Get("/grants/{id}", s.getGrant)
		r.Post("/grants/reconcile", s.forceReconcile)
		r.Post("/grants/broadcast", s.broadcast)
	})

	return r
}
