// Package client talks to HuddleService over gRPC on behalf of one member.
// It is the signal relay and roster source of a client-resident mesh.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/domain"
	"github.com/cwrk-planet/huddle-service/internal/mesh"
	grpcx "github.com/cwrk-planet/huddle-service/internal/transport/grpc"
	"github.com/cwrk-planet/huddle-service/pkg/httputil"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

var ErrUpstream = errors.New("upstream error")

type Options struct {
	Target      string
	Timeout     time.Duration
	WorkspaceID domain.WorkspaceID
	// Token — access token без "Bearer "; UserID — для header-режима авторизации.
	Token  string
	UserID string

	DialOptions []grpc.DialOption
}

type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
	md      metadata.MD
}

var (
	_ mesh.Relay  = (*Client)(nil)
	_ mesh.Roster = (*Client)(nil)
)

func New(opts Options) (*Client, error) {
	if opts.Target == "" {
		return nil, fmt.Errorf("huddle client: empty target")
	}
	if opts.WorkspaceID == "" {
		return nil, fmt.Errorf("huddle client: empty workspace id")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts.DialOptions...)

	conn, err := grpc.NewClient(opts.Target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("huddle client: new client failed: %w", err)
	}

	md := metadata.Pairs("x-workspace-id", string(opts.WorkspaceID))
	if opts.Token != "" {
		md.Set("authorization", "Bearer "+opts.Token)
	}
	if opts.UserID != "" {
		md.Set("x-user-id", opts.UserID)
	}
	return &Client{conn: conn, timeout: opts.Timeout, md: md}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) invoke(ctx context.Context, method string, in map[string]any) (*structpb.Struct, error) {
	rpcCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rpcCtx = metadata.NewOutgoingContext(rpcCtx, c.md.Copy())
	if rid, ok := httputil.RequestIDFrom(ctx); ok {
		rpcCtx = metadata.AppendToOutgoingContext(rpcCtx, "x-request-id", rid)
	}

	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, fmt.Errorf("huddle client: encode %s: %w", method, err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(rpcCtx, grpcx.FullMethod(method), req, out); err != nil {
		return nil, fromStatus(err)
	}
	return out, nil
}

// fromStatus возвращает доменные ошибки, чтобы вызывающий мог errors.Is.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, st.Message())
	case codes.PermissionDenied:
		return fmt.Errorf("%w: %s", domain.ErrForbidden, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", domain.ErrInvalid, st.Message())
	default:
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
}

func huddleOf(out *structpb.Struct) (*domain.Session, error) {
	v := out.GetFields()[grpcx.FieldHuddle].GetStructValue()
	if v == nil {
		return nil, nil
	}
	return grpcx.ParseHuddle(v)
}

// Joined is the huddle the caller is now in and the caller's member id in it.
type Joined struct {
	Session *domain.Session
	Self    domain.MemberID
}

func joinedOf(out *structpb.Struct) (*Joined, error) {
	sess, err := huddleOf(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if sess == nil {
		return nil, fmt.Errorf("%w: empty huddle in response", ErrUpstream)
	}
	return &Joined{Session: sess, Self: domain.MemberID(grpcx.Str(out, grpcx.FieldMemberID))}, nil
}

func (c *Client) StartOrJoin(ctx context.Context, target domain.Target) (*Joined, error) {
	out, err := c.invoke(ctx, "StartOrJoin", map[string]any{
		grpcx.FieldScopeType: string(target.Type),
		grpcx.FieldTarget:    target.ID,
	})
	if err != nil {
		return nil, err
	}
	return joinedOf(out)
}

// ActiveHuddle returns nil when the target's scope has no active huddle.
func (c *Client) ActiveHuddle(ctx context.Context, target domain.Target) (*domain.Session, error) {
	out, err := c.invoke(ctx, "GetActiveHuddle", map[string]any{
		grpcx.FieldScopeType: string(target.Type),
		grpcx.FieldTarget:    target.ID,
	})
	if err != nil {
		return nil, err
	}
	return huddleOf(out)
}

func (c *Client) MyActiveHuddle(ctx context.Context) (*domain.Session, error) {
	out, err := c.invoke(ctx, "GetMyActiveHuddle", map[string]any{})
	if err != nil {
		return nil, err
	}
	return huddleOf(out)
}

func (c *Client) Incoming(ctx context.Context) ([]domain.Session, error) {
	out, err := c.invoke(ctx, "IncomingHuddles", map[string]any{})
	if err != nil {
		return nil, err
	}
	items := grpcx.Items(out)
	res := make([]domain.Session, 0, len(items))
	for _, it := range items {
		s, err := grpcx.ParseHuddle(it)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		res = append(res, *s)
	}
	return res, nil
}

func (c *Client) Join(ctx context.Context, id domain.SessionID) (*Joined, error) {
	out, err := c.invoke(ctx, "Join", map[string]any{grpcx.FieldHuddleID: string(id)})
	if err != nil {
		return nil, err
	}
	return joinedOf(out)
}

func (c *Client) Leave(ctx context.Context, id domain.SessionID) error {
	_, err := c.invoke(ctx, "Leave", map[string]any{grpcx.FieldHuddleID: string(id)})
	return err
}

func (c *Client) End(ctx context.Context, id domain.SessionID) error {
	_, err := c.invoke(ctx, "End", map[string]any{grpcx.FieldHuddleID: string(id)})
	return err
}

func (c *Client) ListParticipants(ctx context.Context, id domain.SessionID) ([]domain.Participant, error) {
	out, err := c.invoke(ctx, "ListParticipants", map[string]any{grpcx.FieldHuddleID: string(id)})
	if err != nil {
		return nil, err
	}
	items := grpcx.Items(out)
	res := make([]domain.Participant, 0, len(items))
	for _, it := range items {
		p, err := grpcx.ParseParticipant(id, it)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		res = append(res, p)
	}
	return res, nil
}

func (c *Client) Send(ctx context.Context, id domain.SessionID, to domain.MemberID, payload []byte) error {
	_, err := c.invoke(ctx, "SendSignal", map[string]any{
		grpcx.FieldHuddleID: string(id),
		grpcx.FieldTo:       string(to),
		grpcx.FieldPayload:  string(payload),
	})
	return err
}

func (c *Client) Receive(ctx context.Context, id domain.SessionID, maxAge time.Duration) ([]domain.SignalEnvelope, error) {
	out, err := c.invoke(ctx, "ReceiveSignals", map[string]any{
		grpcx.FieldHuddleID: string(id),
		grpcx.FieldMaxAgeMS: maxAge.Milliseconds(),
	})
	if err != nil {
		return nil, err
	}
	items := grpcx.Items(out)
	res := make([]domain.SignalEnvelope, 0, len(items))
	for _, it := range items {
		e, err := grpcx.ParseEnvelope(id, it)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		res = append(res, e)
	}
	return res, nil
}

func (c *Client) Purge(ctx context.Context, id domain.SessionID, olderThan time.Duration) error {
	_, err := c.invoke(ctx, "PurgeSignals", map[string]any{
		grpcx.FieldHuddleID: string(id),
		grpcx.FieldOlderMS:  olderThan.Milliseconds(),
	})
	return err
}
