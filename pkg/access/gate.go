package access

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"onelink/pkg/logging"
	"onelink/pkg/ratelimit"
	"onelink/pkg/service"

	"github.com/google/uuid"
)

// Decision is the outcome of an access check, ready to be rendered as headers.
type Decision struct {
	Class      ratelimit.RouteClass
	Allowed    bool
	Limit      int64
	Remaining  int64
	Reset      time.Time
	RetryAfter time.Duration
}

// WriteHeaders sets the rate-limit headers, plus Retry-After when denied.
func (d Decision) WriteHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
	if !d.Allowed {
		h.Set("Retry-After", strconv.FormatInt(d.RetryAfterSeconds(), 10))
	}
}

func (d Decision) RetryAfterSeconds() int64 {
	return int64(d.RetryAfter / time.Second)
}

// RateLimitError is returned when a request is denied by its policy.
type RateLimitError struct {
	Decision Decision
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %ds", e.Decision.Class, e.Decision.RetryAfterSeconds())
}

// WriteDenied renders a 429 response for a denied decision.
func WriteDenied(w http.ResponseWriter, d Decision) {
	d.WriteHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":      "Too many requests",
		"message":    "Rate limit exceeded. Please try again later.",
		"retryAfter": d.RetryAfterSeconds(),
	})
}

// Gate combines identity resolution, the policy table and the limiter.
type Gate struct {
	limiter  *ratelimit.Limiter
	policies ratelimit.Policies
	logger   *logging.Logger
}

func NewGate(limiter *ratelimit.Limiter, policies ratelimit.Policies, logger *logging.Logger) *Gate {
	return &Gate{limiter: limiter, policies: policies, logger: logger}
}

// Authorize checks the request against the policy for class. User-keyed classes need a
// non-nil userID and fail with service.ErrUnauthorized before any counter is touched.
// A denial returns the decision together with a *RateLimitError.
func (g *Gate) Authorize(ctx context.Context, class ratelimit.RouteClass, r *http.Request, userID uuid.UUID) (Decision, error) {
	policy, ok := g.policies.Lookup(class)
	if !ok {
		return Decision{}, fmt.Errorf("access: no policy for route class %q", class)
	}

	var identifier string
	switch policy.KeyBy {
	case ratelimit.KeyByUser:
		if userID == uuid.Nil {
			return Decision{}, service.ErrUnauthorized
		}
		identifier = UserIdentifier(userID)
	default:
		identifier = ClientIP(r)
	}

	return g.check(ctx, policy, identifier)
}

// AuthorizeIdentifier checks an explicit identifier against the policy for class.
func (g *Gate) AuthorizeIdentifier(ctx context.Context, class ratelimit.RouteClass, identifier string) (Decision, error) {
	policy, ok := g.policies.Lookup(class)
	if !ok {
		return Decision{}, fmt.Errorf("access: no policy for route class %q", class)
	}
	return g.check(ctx, policy, identifier)
}

func (g *Gate) check(ctx context.Context, policy ratelimit.Policy, identifier string) (Decision, error) {
	res := g.limiter.Check(ctx, identifier, policy)

	d := Decision{
		Class:     policy.Class,
		Allowed:   res.Allowed,
		Limit:     res.Limit,
		Remaining: res.Remaining,
		Reset:     res.Reset,
	}
	if !res.Allowed {
		d.RetryAfter = res.RetryAfter(g.limiter.Now())
		return d, &RateLimitError{Decision: d}
	}
	return d, nil
}
