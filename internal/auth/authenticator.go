package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/quickfood/quickfood-backend/internal/platform/httpx"
	"github.com/quickfood/quickfood-backend/internal/shared"
	"github.com/quickfood/quickfood-backend/internal/token"
	"github.com/quickfood/quickfood-backend/internal/users"
)

// pendingToken carries an access token minted mid-request out to the
// response. The response writer is not available when the authenticator
// runs, so the relay drains it when headers flush.
type pendingToken struct {
	value string
}

type pendingTokenKey struct{}

func contextWithPendingToken(ctx context.Context, p *pendingToken) context.Context {
	return context.WithValue(ctx, pendingTokenKey{}, p)
}

func pendingTokenFromContext(ctx context.Context) *pendingToken {
	p, _ := ctx.Value(pendingTokenKey{}).(*pendingToken)
	return p
}

// Authenticator authenticates each inbound request from the auth cookies and
// transparently refreshes an expired access token at most once per request.
type Authenticator struct {
	service   *Service
	cookies   Cookies
	logger    *slog.Logger
	onRefresh func()
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(service *Service, cookies Cookies, logger *slog.Logger) *Authenticator {
	return &Authenticator{service: service, cookies: cookies, logger: logger}
}

// WithRefreshObserver registers a callback invoked once per transparent
// refresh. Used to feed metrics.
func (a *Authenticator) WithRefreshObserver(fn func()) *Authenticator {
	a.onRefresh = fn
	return a
}

// RefreshRelay installs the pending-token carrier and, as the last step
// before headers flush, writes a refreshed access token into the response
// cookies. Responses without a pending token pass through unmodified. Mount
// outside Middleware.
func (a *Authenticator) RefreshRelay(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		carrier := &pendingToken{}
		ctx := contextWithPendingToken(r.Context(), carrier)
		wrapped := &relayWriter{ResponseWriter: w, carrier: carrier, cookies: a.cookies}
		next.ServeHTTP(wrapped, r.WithContext(ctx))
		// Handlers that never write still get the cookie attached.
		wrapped.commit()
	})
}

// Middleware resolves the request's identity from the access-token cookie.
//
// No cookie: the request proceeds anonymously and downstream authorization
// decides. A valid token attaches the identity. An expired token with a
// refresh cookie present triggers a single synchronous refresh: the refresh
// token is validated, a new access token (only) is minted and registered for
// the relay, and the request proceeds authenticated. All other outcomes are
// terminal rejections.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(AccessCookie)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		user, claims, err := a.service.ValidateToken(r.Context(), cookie.Value, token.KindAccess)
		switch {
		case err == nil:
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), user, claims.Role)))
		case errors.Is(err, shared.ErrTokenExpired):
			a.refresh(w, r, next)
		default:
			// Malformed or wrong-kind tokens, and tokens whose subject no
			// longer resolves, are rejected outright.
			httpx.RespondError(w, err)
		}
	})
}

func (a *Authenticator) refresh(w http.ResponseWriter, r *http.Request, next http.Handler) {
	refreshCookie, err := r.Cookie(RefreshCookie)
	if err != nil {
		httpx.RespondError(w, shared.ErrTokenExpired)
		return
	}

	user, _, err := a.service.ValidateToken(r.Context(), refreshCookie.Value, token.KindRefresh)
	if err != nil {
		httpx.RespondError(w, shared.ErrRefreshInvalid)
		return
	}

	minted, err := a.service.MintAccess(r.Context(), user)
	if err != nil {
		a.logger.Error("mint refreshed access token", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if carrier := pendingTokenFromContext(r.Context()); carrier != nil {
		carrier.value = minted
	}
	if a.onRefresh != nil {
		a.onRefresh()
	}

	role, err := a.service.CurrentRole(r.Context(), user.ID)
	if err != nil {
		a.logger.Warn("resolve role after refresh", slog.Any("error", err))
	}
	next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), user, role)))
}

func withIdentity(ctx context.Context, user users.User, role string) context.Context {
	return shared.ContextWithIdentity(ctx, shared.Identity{
		UserID: user.ID,
		Email:  user.Email,
		Role:   role,
	})
}

// RequireIdentity rejects anonymous requests. Mount inside Middleware on
// routes that need an authenticated caller regardless of role.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.IdentityFromContext(r.Context()); !ok {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// relayWriter attaches the pending access token cookie right before the
// header section is committed, with the same flags an originally-issued
// access cookie carries.
type relayWriter struct {
	http.ResponseWriter
	carrier       *pendingToken
	cookies       Cookies
	headerWritten bool
}

func (w *relayWriter) WriteHeader(statusCode int) {
	w.commit()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *relayWriter) Write(data []byte) (int, error) {
	if !w.headerWritten {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(data)
}

func (w *relayWriter) commit() {
	if w.headerWritten {
		return
	}
	w.headerWritten = true
	if w.carrier != nil && w.carrier.value != "" {
		w.cookies.SetAccess(w.ResponseWriter, w.carrier.value)
	}
}

// Flush commits the cookie headers before delegating, so streaming handlers
// keep the transparent-refresh behavior.
func (w *relayWriter) Flush() {
	if !w.headerWritten {
		w.WriteHeader(http.StatusOK)
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// ReadFrom preserves the sendfile fast path of the underlying writer for
// handlers that serve files.
func (w *relayWriter) ReadFrom(src io.Reader) (int64, error) {
	if !w.headerWritten {
		w.WriteHeader(http.StatusOK)
	}
	if rf, ok := w.ResponseWriter.(io.ReaderFrom); ok {
		return rf.ReadFrom(src)
	}
	return io.Copy(w.ResponseWriter, src)
}
