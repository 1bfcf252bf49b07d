package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/application"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/domain"
)

const serviceName = "viralforge.affiliation.v1.AffiliationInternalService"

type AffiliationInternalService interface {
	ValidateToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResolveAffiliationCode(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetInfluencerStats(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type AffiliationInternalServer struct {
	service *application.Service
}

func NewAffiliationInternalServer(service *application.Service) *AffiliationInternalServer {
	return &AffiliationInternalServer{service: service}
}

func Register(server grpc.ServiceRegistrar, svc AffiliationInternalService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*AffiliationInternalService)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "ValidateToken",
				Handler:    unaryHandler("ValidateToken", svc.ValidateToken),
			},
			{
				MethodName: "ResolveAffiliationCode",
				Handler:    unaryHandler("ResolveAffiliationCode", svc.ResolveAffiliationCode),
			},
			{
				MethodName: "GetInfluencerStats",
				Handler:    unaryHandler("GetInfluencerStats", svc.GetInfluencerStats),
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "mesh/contracts/proto/affiliation/v1/affiliation_internal.proto",
	}, svc)
}

func (s *AffiliationInternalServer) ValidateToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token := stringField(req, "token")
	if token == "" {
		return nil, status.Error(codes.InvalidArgument, "missing token")
	}

	claims, err := s.service.ValidateToken(ctx, token)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}
	return buildResponse(map[string]any{
		"valid":         true,
		"influencer_id": claims.SubjectID.String(),
		"email":         claims.Email,
		"role":          claims.Role,
		"expires_at":    claims.ExpiresAt.Unix(),
	})
}

func (s *AffiliationInternalServer) ResolveAffiliationCode(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	code := stringField(req, "code")
	if code == "" {
		return nil, status.Error(codes.InvalidArgument, "missing code")
	}
	inf, err := s.service.ResolveAffiliationCode(ctx, code)
	if err != nil {
		return nil, toStatus(err)
	}
	return buildResponse(map[string]any{
		"influencer_id": inf.ID.String(),
		"nom":           inf.Name,
		"is_active":     inf.IsActive,
	})
}

func (s *AffiliationInternalServer) GetInfluencerStats(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := uuid.Parse(stringField(req, "influencer_id"))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid influencer_id")
	}
	stats, err := s.service.InfluencerStats(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return buildResponse(map[string]any{
		"total_prospects": stats.Counts.Total(),
		"en_attente":      stats.Counts.Pending,
		"confirme":        stats.Counts.Confirmed,
		"rejeter":         stats.Counts.Rejected,
		"taux_conversion": stats.ConversionRate,
	})
}

func stringField(req *structpb.Struct, name string) string {
	v := req.GetFields()[name]
	if v == nil {
		return ""
	}
	return strings.TrimSpace(v.GetStringValue())
}

func buildResponse(fields map[string]any) (*structpb.Struct, error) {
	resp, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, domain.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrTokenRevoked):
		return status.Error(codes.Unauthenticated, "unauthenticated")
	case errors.Is(err, domain.ErrForbidden):
		return status.Error(codes.PermissionDenied, "permission denied")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

type unaryMethod func(context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + serviceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return call(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}
