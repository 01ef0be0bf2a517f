package grpcx

import (
	"context"
	"errors"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/auth"
	"github.com/cwrk-planet/huddle-service/internal/domain"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	mdAuthorization = "authorization"
	mdUserID        = "x-user-id"
	mdWorkspaceID   = "x-workspace-id"
)

type HuddleSvc interface {
	StartOrJoin(ctx context.Context, caller *domain.Member, target domain.Target) (*domain.Session, error)
	Join(ctx context.Context, caller *domain.Member, id domain.SessionID) (*domain.Session, error)
	Leave(ctx context.Context, caller *domain.Member, id domain.SessionID) error
	End(ctx context.Context, caller *domain.Member, id domain.SessionID) error
	ActiveForSource(ctx context.Context, caller *domain.Member, target domain.Target) (*domain.Session, error)
	ActiveForMember(ctx context.Context, member domain.MemberID) (*domain.Session, error)
	ListParticipants(ctx context.Context, caller *domain.Member, id domain.SessionID) ([]domain.Participant, error)
}

type SignalSvc interface {
	Send(ctx context.Context, id domain.SessionID, from, to domain.MemberID, payload []byte) (*domain.SignalEnvelope, error)
	Receive(ctx context.Context, id domain.SessionID, to domain.MemberID, maxAge time.Duration) ([]domain.SignalEnvelope, error)
	PurgeAsHost(ctx context.Context, id domain.SessionID, caller domain.MemberID, olderThan time.Duration) (int64, error)
}

type PresenceSvc interface {
	Incoming(ctx context.Context, member domain.MemberID) ([]domain.Session, error)
}

type MemberResolver interface {
	Resolve(ctx context.Context, ws domain.WorkspaceID, user domain.UserID) (*domain.Member, error)
}

type Server struct {
	authn    auth.Authenticator
	members  MemberResolver
	huddles  HuddleSvc
	signals  SignalSvc
	presence PresenceSvc
}

var _ HuddleServiceServer = (*Server)(nil)

func NewServer(authn auth.Authenticator, members MemberResolver, huddles HuddleSvc, signals SignalSvc, presence PresenceSvc) *Server {
	return &Server{
		authn:    authn,
		members:  members,
		huddles:  huddles,
		signals:  signals,
		presence: presence,
	}
}

// -------- helpers --------

// caller проверяет authorization / x-user-id и резолвит участника по x-workspace-id.
func (s *Server) caller(ctx context.Context) (*domain.Member, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}
	uid, err := s.authn.Authenticate(ctx, auth.Credentials{
		Bearer: auth.BearerToken(first(md.Get(mdAuthorization))),
		UserID: first(md.Get(mdUserID)),
	})
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid credentials")
	}
	ws := first(md.Get(mdWorkspaceID))
	if ws == "" {
		return nil, status.Error(codes.InvalidArgument, "missing x-workspace-id")
	}
	m, err := s.members.Resolve(ctx, domain.WorkspaceID(ws), uid)
	if err != nil {
		return nil, mapErr(err)
	}
	return m, nil
}

func first(ss []string) string {
	if len(ss) == 0 {
		return ""
	}

	return ss[0]
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

func huddleResponse(sess *domain.Session) (*structpb.Struct, error) {
	if sess == nil {
		return newStruct(map[string]any{FieldHuddle: nil})
	}
	return newStruct(map[string]any{FieldHuddle: HuddleValue(sess)})
}

// joinedResponse также возвращает member id вызывающего: клиент знает только свой user id.
func joinedResponse(sess *domain.Session, me *domain.Member) (*structpb.Struct, error) {
	return newStruct(map[string]any{FieldHuddle: HuddleValue(sess), FieldMemberID: string(me.ID)})
}

func targetOf(in *structpb.Struct) domain.Target {
	return domain.Target{Type: domain.ScopeType(Str(in, FieldScopeType)), ID: Str(in, FieldTarget)}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, domain.ErrInvalid):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// -------- methods --------

func (s *Server) StartOrJoin(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	me, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	sess, err := s.huddles.StartOrJoin(ctx, me, targetOf(in))
	if err != nil {
		return nil, mapErr(err)
	}
	return joinedResponse(sess, me)
}

func (s *Server) GetActiveHuddle(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	me, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	sess, err := s.huddles.ActiveForSource(ctx, me, targetOf(in))
	if err != nil {
		return nil, mapErr(err)
	}
	return huddleResponse(sess)
}

func (s *Server) GetMyActiveHuddle(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	me, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	sess, err := s.huddles.ActiveForMember(ctx, me.ID)
	if err != nil {
		return nil, mapErr(err)
	}
	return huddleResponse(sess)
}

func (s *Server) IncomingHuddles(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	me, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.presence.Incoming(ctx, me.ID)
	if err != nil {
		return nil, mapErr(err)
	}
	items := make([]any, 0, len(list))
	for i := range list {
		items = append(items, HuddleValue(&list[i]))
	}
	return newStruct(map[string]any{FieldItems: items})
}

func (s *Server) Join(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	me, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	sess, err := s.huddles.Join(ctx, me, domain.SessionID(Str(in, FieldHuddleID)))
	if err != nil {
		return nil, mapErr(err)
	}
	return joinedResponse(sess, me)
}

func (s *Server) Leave(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	me, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.huddles.Leave(ctx, me, domain.SessionID(Str(in, FieldHuddleID))); err != nil {
		return nil, mapErr(err)
	}
	return &structpb.Struct{}, nil
}

func (s *Server) End(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	me, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.huddles.End(ctx, me, domain.SessionID(Str(in, FieldHuddleID))); err != nil {
		return nil, mapErr(err)
	}
	return &structpb.Struct{}, nil
}

func (s *Server) ListParticipants(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	me, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	ps, err := s.huddles.ListParticipants(ctx, me, domain.SessionID(Str(in, FieldHuddleID)))
	if err != nil {
		return nil, mapErr(err)
	}
	return newStruct(map[string]any{FieldItems: list(ps, ParticipantValue)})
}

func (s *Server) SendSignal(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	me, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	env, err := s.signals.Send(ctx,
		domain.SessionID(Str(in, FieldHuddleID)),
		me.ID,
		domain.MemberID(Str(in, FieldTo)),
		[]byte(Str(in, FieldPayload)),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return newStruct(map[string]any{FieldEnvelope: EnvelopeValue(*env)})
}

func (s *Server) ReceiveSignals(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	me, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	envs, err := s.signals.Receive(ctx, domain.SessionID(Str(in, FieldHuddleID)), me.ID, Millis(in, FieldMaxAgeMS))
	if err != nil {
		return nil, mapErr(err)
	}
	return newStruct(map[string]any{FieldItems: list(envs, EnvelopeValue)})
}

func (s *Server) PurgeSignals(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	me, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.signals.PurgeAsHost(ctx, domain.SessionID(Str(in, FieldHuddleID)), me.ID, Millis(in, FieldOlderMS))
	if err != nil {
		return nil, mapErr(err)
	}
	return newStruct(map[string]any{FieldDeleted: n})
}
