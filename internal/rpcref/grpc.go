package rpcref

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	apperrors "github.com/jittakal/gatewaypipe/internal/errors"
)

// GRPCDialer builds lazy gRPC client connections. No network I/O happens
// until the first call on the connection.
type GRPCDialer struct {
	// DefaultTarget is used when a reference carries no url.
	DefaultTarget string
	Insecure      bool
	// ConnectTimeout bounds each connection attempt. Zero keeps the gRPC default.
	ConnectTimeout time.Duration
}

// GRPCHandle wraps a client connection.
type GRPCHandle struct {
	conn *grpc.ClientConn
}

// Conn returns the client connection.
func (h *GRPCHandle) Conn() *grpc.ClientConn {
	return h.conn
}

// Close closes the client connection.
func (h *GRPCHandle) Close() error {
	return h.conn.Close()
}

// Target returns the address a reference dials.
func (d GRPCDialer) Target(ref Reference) string {
	target := ref.Ext.URL
	if target == "" {
		target = d.DefaultTarget
	}
	for _, scheme := range []string{"grpc://", "dubbo://", "tri://"} {
		target = strings.TrimPrefix(target, scheme)
	}
	return target
}

// Dial creates the client connection of ref.
func (d GRPCDialer) Dial(ctx context.Context, ref Reference) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target := d.Target(ref)
	if target == "" {
		return nil, &apperrors.InvalidConfigError{Field: "rpc.default_target", Reason: "reference has no url and no default target is set"}
	}

	creds := insecure.NewCredentials()
	if !d.Insecure {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	serviceConfig, err := ServiceConfig(ref)
	if err != nil {
		return nil, err
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultServiceConfig(serviceConfig),
		grpc.WithUserAgent("gatewaypipe/" + ref.AppName),
	}
	if d.ConnectTimeout > 0 {
		opts = append(opts, grpc.WithConnectParams(grpc.ConnectParams{
			Backoff:           backoff.DefaultConfig,
			MinConnectTimeout: d.ConnectTimeout,
		}))
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", target, err)
	}
	return &GRPCHandle{conn: conn}, nil
}

type methodName struct {
	Service string `json:"service"`
}

type retryPolicy struct {
	MaxAttempts          int      `json:"maxAttempts"`
	InitialBackoff       string   `json:"initialBackoff"`
	MaxBackoff           string   `json:"maxBackoff"`
	BackoffMultiplier    float64  `json:"backoffMultiplier"`
	RetryableStatusCodes []string `json:"retryableStatusCodes"`
}

type methodConfig struct {
	Name        []methodName `json:"name"`
	Timeout     string       `json:"timeout,omitempty"`
	RetryPolicy *retryPolicy `json:"retryPolicy,omitempty"`
}

type serviceConfig struct {
	LoadBalancingConfig []map[string]struct{} `json:"loadBalancingConfig,omitempty"`
	MethodConfig        []methodConfig        `json:"methodConfig,omitempty"`
}

// maxAttempts is the ceiling gRPC applies to retry policies.
const maxAttempts = 5

// ServiceConfig renders the gRPC service config of ref: round-robin
// balancing, call timeout and retries follow its rpc_ext settings.
func ServiceConfig(ref Reference) (string, error) {
	var sc serviceConfig

	switch strings.ToLower(ref.Ext.LoadBalance) {
	case "roundrobin", "round_robin":
		sc.LoadBalancingConfig = []map[string]struct{}{{"round_robin": {}}}
	case "", "random", "pick_first":
		sc.LoadBalancingConfig = []map[string]struct{}{{"pick_first": {}}}
	default:
		return "", &apperrors.ValidationError{Field: "rpcExt.loadbalance", Reason: fmt.Sprintf("unsupported load balancer %q", ref.Ext.LoadBalance)}
	}

	mc := methodConfig{Name: []methodName{{Service: ref.Service}}}
	if timeout := ref.Ext.TimeoutDuration(); timeout > 0 {
		mc.Timeout = fmt.Sprintf("%.3fs", timeout.Seconds())
	}
	if ref.Ext.Retries != nil && *ref.Ext.Retries > 0 {
		attempts := min(*ref.Ext.Retries+1, maxAttempts)
		mc.RetryPolicy = &retryPolicy{
			MaxAttempts:          attempts,
			InitialBackoff:       "0.1s",
			MaxBackoff:           "1s",
			BackoffMultiplier:    2,
			RetryableStatusCodes: []string{"UNAVAILABLE"},
		}
	}
	if mc.Timeout != "" || mc.RetryPolicy != nil {
		sc.MethodConfig = []methodConfig{mc}
	}

	out, err := json.Marshal(sc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
