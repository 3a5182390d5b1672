package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/shared"
)

// CodeExchanger is the HubSpot side of the credential resolver.
type CodeExchanger interface {
	AuthCodeURL(state string) string
	ExchangeHubSpotCode(ctx context.Context, code string) (*oauth2.Token, error)
}

// TokenWriter persists tokens issued by the callback.
type TokenWriter interface {
	Upsert(ctx context.Context, token *models.StoredToken) error
}

// OAuthResult contains the result of one completed HubSpot authorization.
type OAuthResult struct {
	UserID string
	Token  *oauth2.Token
	err    error
}

func (o *OAuthResult) Error() error {
	return o.err
}

// OAuthHandler serves GET /api/auth/hubspot for the authorization-code flow.
//
// Without a code it redirects to HubSpot's authorize URL with a fresh state. With a code it checks the
// state, exchanges the code, stores the token under a new temporary user id and redirects to the dashboard
// with userId and hubspotToken query parameters.
type OAuthHandler struct {
	exchanger    CodeExchanger
	store        TokenWriter
	dashboardURL string
	logger       *log.Logger
	now          func() time.Time

	mu         sync.Mutex
	states     map[string]time.Time
	resultChan chan OAuthResult
}

// stateTTL bounds how long an issued state stays valid.
const stateTTL = 10 * time.Minute

// NewOAuthHandler creates a new OAuth handler. store may be nil, in which case tokens are only handed to the
// dashboard.
func NewOAuthHandler(exchanger CodeExchanger, store TokenWriter, dashboardURL string, logger *log.Logger) *OAuthHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &OAuthHandler{
		exchanger:    exchanger,
		store:        store,
		dashboardURL: dashboardURL,
		logger:       shared.WithLogger(logger, "handler", "oauth"),
		now:          time.Now,
		states:       map[string]time.Time{},
		resultChan:   make(chan OAuthResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{"/api/auth/hubspot"}
}

// issueState records a new state token and returns it.
func (h *OAuthHandler) issueState() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	for s, at := range h.states {
		if now.Sub(at) > stateTTL {
			delete(h.states, s)
		}
	}
	state := shared.GenerateID()
	h.states[state] = now
	return state
}

// consumeState reports whether state was issued and unexpired, invalidating it.
func (h *OAuthHandler) consumeState(state string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	at, ok := h.states[state]
	delete(h.states, state)
	return ok && h.now().Sub(at) <= stateTTL
}

// ServeHTTP handles both legs of the authorization flow.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("%w: method %s not allowed", shared.ErrInvalidInput, r.Method))
		return
	}

	q := r.URL.Query()
	code := q.Get("code")
	if code == "" {
		if errParam := q.Get("error"); errParam != "" {
			err := fmt.Errorf("%w: authorization failed: %s - %s", shared.ErrAuthFailed, errParam, q.Get("error_description"))
			h.Send(OAuthResult{err: err})
			writeError(w, http.StatusBadRequest, err)
			return
		}
		http.Redirect(w, r, h.exchanger.AuthCodeURL(h.issueState()), http.StatusFound)
		return
	}

	if !h.consumeState(q.Get("state")) {
		err := fmt.Errorf("%w: invalid state parameter", shared.ErrInvalidInput)
		h.Send(OAuthResult{err: err})
		writeError(w, http.StatusBadRequest, err)
		return
	}

	token, err := h.exchanger.ExchangeHubSpotCode(r.Context(), code)
	if err != nil {
		h.logger.Error("token exchange failed", "err", err)
		h.Send(OAuthResult{err: fmt.Errorf("token exchange failed: %w", err)})
		writeError(w, statusFor(err), err)
		return
	}

	userID := shared.GenerateID()
	if err := h.persist(r.Context(), userID, token); err != nil {
		h.logger.Error("could not store hubspot token", "user", userID, "err", err)
		h.Send(OAuthResult{err: err})
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.logger.Info("hubspot authorized", "user", userID)
	h.Send(OAuthResult{UserID: userID, Token: token})

	target, err := url.Parse(h.dashboardURL)
	if err != nil || h.dashboardURL == "" {
		target = &url.URL{Path: "/"}
	}
	params := target.Query()
	params.Set("userId", userID)
	params.Set("hubspotToken", token.AccessToken)
	target.RawQuery = params.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (h *OAuthHandler) persist(ctx context.Context, userID string, token *oauth2.Token) error {
	if h.store == nil {
		return nil
	}
	blob, err := json.Marshal(models.HubSpotTokenBlob{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	})
	if err != nil {
		return err
	}
	return h.store.Upsert(ctx, &models.StoredToken{
		UserID:    userID,
		Platform:  models.PlatformHubSpot,
		Token:     blob,
		UpdatedAt: h.now(),
	})
}

// Send publishes result without blocking; when nobody is waiting the result is dropped.
func (h *OAuthHandler) Send(result OAuthResult) {
	select {
	case h.resultChan <- result:
	default:
	}
}

// Result returns the channel that receives completed authorizations.
//
// It is buffered by one; results arriving while it is full are dropped.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.resultChan
}
