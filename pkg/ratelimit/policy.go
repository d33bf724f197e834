package ratelimit

import (
	"fmt"
	"time"
)

// RouteClass names a family of routes sharing one limiter policy.
type RouteClass string

const (
	ClassEdge   RouteClass = "edge"
	ClassAPI    RouteClass = "api"
	ClassAuth   RouteClass = "auth"
	ClassCreate RouteClass = "create"
	ClassUpload RouteClass = "upload"
	ClassBrowse RouteClass = "browse"
	ClassStrict RouteClass = "strict"
)

// KeyKind says which identity a policy is keyed by.
type KeyKind int

const (
	KeyByIP KeyKind = iota
	KeyByUser
)

// FailureMode decides what happens when the counter store cannot be reached.
type FailureMode string

const (
	FailOpen   FailureMode = "open"
	FailClosed FailureMode = "closed"
	FailLocal  FailureMode = "local"
)

type Policy struct {
	Class       RouteClass
	Limit       int64
	Window      time.Duration
	Prefix      string
	KeyBy       KeyKind
	FailureMode FailureMode
}

// Policies is the lookup table from route class to policy.
type Policies map[RouteClass]Policy

func DefaultPolicies() Policies {
	return Policies{
		ClassEdge:   {Class: ClassEdge, Limit: 100, Window: time.Minute, Prefix: "ratelimit:middleware", KeyBy: KeyByIP, FailureMode: FailOpen},
		ClassAPI:    {Class: ClassAPI, Limit: 60, Window: time.Minute, Prefix: "ratelimit:api", KeyBy: KeyByIP, FailureMode: FailOpen},
		ClassAuth:   {Class: ClassAuth, Limit: 10, Window: time.Minute, Prefix: "ratelimit:auth", KeyBy: KeyByIP, FailureMode: FailOpen},
		ClassCreate: {Class: ClassCreate, Limit: 30, Window: time.Minute, Prefix: "ratelimit:create", KeyBy: KeyByUser, FailureMode: FailOpen},
		ClassUpload: {Class: ClassUpload, Limit: 10, Window: time.Hour, Prefix: "ratelimit:upload", KeyBy: KeyByUser, FailureMode: FailOpen},
		ClassBrowse: {Class: ClassBrowse, Limit: 100, Window: time.Minute, Prefix: "ratelimit:browse", KeyBy: KeyByIP, FailureMode: FailOpen},
		ClassStrict: {Class: ClassStrict, Limit: 5, Window: time.Minute, Prefix: "ratelimit:strict", KeyBy: KeyByUser, FailureMode: FailOpen},
	}
}

func (p Policies) Lookup(class RouteClass) (Policy, bool) {
	policy, ok := p[class]
	return policy, ok
}

// WithFailureModes returns a copy of p with the given per-class failure modes applied.
func (p Policies) WithFailureModes(modes map[string]string) (Policies, error) {
	out := make(Policies, len(p))
	for class, policy := range p {
		out[class] = policy
	}
	for class, mode := range modes {
		policy, ok := out[RouteClass(class)]
		if !ok {
			return nil, fmt.Errorf("ratelimit: unknown route class %q", class)
		}
		switch FailureMode(mode) {
		case FailOpen, FailClosed, FailLocal:
			policy.FailureMode = FailureMode(mode)
		default:
			return nil, fmt.Errorf("ratelimit: unknown failure mode %q", mode)
		}
		out[RouteClass(class)] = policy
	}
	return out, nil
}
