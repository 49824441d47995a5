// Package rpcref caches client handles of the upstream RPC services routed
// through the gateway.
//
// A Reference is derived from the service metadata pushed by the gateway
// admin. Its Handle is built by a Dialer and kept in a bounded LRU Cache; a
// handle is closed whenever its slot is evicted or invalidated.
package rpcref

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	apperrors "github.com/jittakal/gatewaypipe/internal/errors"
	"github.com/jittakal/gatewaypipe/pkg/event"
)

// Ext holds the optional per-service settings carried as JSON in the
// metadata's rpc_ext attribute.
type Ext struct {
	Group       string `json:"group,omitempty"`
	Version     string `json:"version,omitempty"`
	LoadBalance string `json:"loadbalance,omitempty"`
	Retries     *int   `json:"retries,omitempty"`
	// Timeout is in milliseconds.
	Timeout *int   `json:"timeout,omitempty"`
	URL     string `json:"url,omitempty"`
}

// ParseExt decodes an rpc_ext document. Blank input yields an empty Ext.
func ParseExt(raw string) (Ext, error) {
	var ext Ext
	if strings.TrimSpace(raw) == "" {
		return ext, nil
	}
	if err := json.Unmarshal([]byte(raw), &ext); err != nil {
		return Ext{}, &apperrors.ValidationError{Field: "rpcExt", Reason: err.Error()}
	}
	return ext, nil
}

// TimeoutDuration returns the call timeout, zero when unset.
func (e Ext) TimeoutDuration() time.Duration {
	if e.Timeout == nil || *e.Timeout <= 0 {
		return 0
	}
	return time.Duration(*e.Timeout) * time.Millisecond
}

// Reference describes how to reach one upstream service method.
type Reference struct {
	Path    string
	AppName string
	Service string
	Method  string
	RPCType string
	Ext     Ext
}

// NewReference builds a Reference from service metadata.
func NewReference(meta event.ServiceMetadata) (Reference, error) {
	if meta.Path == "" {
		return Reference{}, &apperrors.ValidationError{Field: "path", Reason: "required field is missing"}
	}
	if meta.ServiceName == "" {
		return Reference{}, &apperrors.ValidationError{Field: "serviceName", Reason: "required field is missing"}
	}

	ext, err := ParseExt(meta.RPCExt)
	if err != nil {
		return Reference{}, err
	}

	return Reference{
		Path:    meta.Path,
		AppName: meta.AppName,
		Service: meta.ServiceName,
		Method:  meta.MethodName,
		RPCType: meta.RPCType,
		Ext:     ext,
	}, nil
}

// Handle is a live client of an upstream service.
type Handle interface {
	Close() error
}

// Dialer builds the handle of a reference.
type Dialer interface {
	Dial(ctx context.Context, ref Reference) (Handle, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, ref Reference) (Handle, error)

// Dial calls f(ctx, ref).
func (f DialerFunc) Dial(ctx context.Context, ref Reference) (Handle, error) {
	return f(ctx, ref)
}
