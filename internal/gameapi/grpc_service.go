package gameapi

import (
	"context"
	"encoding/json"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/stellar-empires/internal/config"
	"github.com/signalsfoundry/stellar-empires/internal/journal"
	"github.com/signalsfoundry/stellar-empires/internal/sim/state"
	"github.com/signalsfoundry/stellar-empires/kb"
	"github.com/signalsfoundry/stellar-empires/model"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "stellarempires.v1.GameService"

// Messages travel as JSON; clients select the codec with
// grpc.CallContentSubtype(CodecName).
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type CreateGameRequest struct {
	GameID string `json:"game_id,omitempty"`
	// Scenario and Rules are YAML documents. Empty Rules uses the server's.
	Scenario string `json:"scenario"`
	Rules    string `json:"rules,omitempty"`
}

type CreateGameResponse struct {
	GameID string `json:"game_id"`
	Turn   int    `json:"turn"`
}

// SubmitOrderRequest carries one order. Kind is one of waypoints,
// production, research, relation, design or tactic; Order is the JSON
// body of the matching model order type.
type SubmitOrderRequest struct {
	GameID string          `json:"game_id"`
	Empire string          `json:"empire"`
	Turn   int             `json:"turn"`
	Kind   string          `json:"kind"`
	Order  json.RawMessage `json:"order"`
}

type SubmitOrderResponse struct {
	Turn     int    `json:"turn"`
	Subject  string `json:"subject"`
	Replaced bool   `json:"replaced"`
	Pending  int    `json:"pending"`
}

type MarkReadyRequest struct {
	GameID string `json:"game_id"`
	Empire string `json:"empire"`
}

type GenerateTurnRequest struct {
	GameID string `json:"game_id"`
}

// TurnResponse reports a resolution. Turn is the turn now accepting orders
// and ResolvedTurn the one before it; both are zero when nothing was
// resolved.
type TurnResponse struct {
	ResolvedTurn int `json:"resolved_turn"`
	Turn         int `json:"turn"`
}

type QueryStateRequest struct {
	GameID string `json:"game_id"`
	Empire string `json:"empire"`
}

type QueryStateResponse struct {
	View *state.View `json:"view"`
}

type ListGamesRequest struct{}

type ListGamesResponse struct {
	Games []GameInfo `json:"games"`
}

// GameServiceServer is the server API for the game service.
type GameServiceServer interface {
	CreateGame(context.Context, *CreateGameRequest) (*CreateGameResponse, error)
	SubmitOrder(context.Context, *SubmitOrderRequest) (*SubmitOrderResponse, error)
	MarkReady(context.Context, *MarkReadyRequest) (*TurnResponse, error)
	GenerateTurn(context.Context, *GenerateTurnRequest) (*TurnResponse, error)
	QueryState(context.Context, *QueryStateRequest) (*QueryStateResponse, error)
	ListGames(context.Context, *ListGamesRequest) (*ListGamesResponse, error)
}

// GameServer adapts a Service to GameServiceServer.
type GameServer struct {
	svc     *Service
	rules   config.Rules
	catalog *kb.DesignCatalog
}

var _ GameServiceServer = (*GameServer)(nil)

// NewGameServer serves svc. Games created over the wire use rules unless
// the request carries its own, and always use catalog.
func NewGameServer(svc *Service, rules config.Rules, catalog *kb.DesignCatalog) *GameServer {
	return &GameServer{svc: svc, rules: rules, catalog: catalog}
}

func (s *GameServer) CreateGame(ctx context.Context, req *CreateGameRequest) (*CreateGameResponse, error) {
	if strings.TrimSpace(req.Scenario) == "" {
		return nil, status.Error(codes.InvalidArgument, "scenario is required")
	}
	galaxy, err := state.LoadScenario(strings.NewReader(req.Scenario), s.catalog)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "scenario: %v", err)
	}
	rules := s.rules
	if req.Rules != "" {
		if rules, err = config.ParseRules([]byte(req.Rules)); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "rules: %v", err)
		}
	}
	id, err := s.svc.CreateGame(ctx, GameSpec{ID: req.GameID, Galaxy: galaxy, Rules: rules, Catalog: s.catalog})
	if err != nil {
		return nil, err
	}
	return &CreateGameResponse{GameID: id, Turn: galaxy.Turn}, nil
}

func (s *GameServer) SubmitOrder(ctx context.Context, req *SubmitOrderRequest) (*SubmitOrderResponse, error) {
	empire := model.EmpireID(req.Empire)
	cmds, err := journal.DecodeOrders([]journal.OrderRecord{{Empire: empire, Turn: req.Turn, Kind: req.Kind, Body: req.Order}})
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "order: %v", err)
	}
	receipt, err := s.svc.SubmitOrder(ctx, req.GameID, empire, cmds[0])
	if err != nil {
		return nil, err
	}
	return &SubmitOrderResponse{
		Turn:     receipt.Turn,
		Subject:  receipt.Subject,
		Replaced: receipt.Replaced,
		Pending:  receipt.Pending,
	}, nil
}

func (s *GameServer) MarkReady(ctx context.Context, req *MarkReadyRequest) (*TurnResponse, error) {
	next, err := s.svc.MarkReady(ctx, req.GameID, model.EmpireID(req.Empire))
	if err != nil {
		return nil, err
	}
	return turnResponse(next), nil
}

func (s *GameServer) GenerateTurn(ctx context.Context, req *GenerateTurnRequest) (*TurnResponse, error) {
	next, err := s.svc.GenerateTurn(ctx, req.GameID)
	if err != nil {
		return nil, err
	}
	return turnResponse(next), nil
}

func turnResponse(next int) *TurnResponse {
	if next == 0 {
		return &TurnResponse{}
	}
	return &TurnResponse{ResolvedTurn: next - 1, Turn: next}
}

func (s *GameServer) QueryState(ctx context.Context, req *QueryStateRequest) (*QueryStateResponse, error) {
	view, err := s.svc.QueryState(ctx, req.GameID, model.EmpireID(req.Empire))
	if err != nil {
		return nil, err
	}
	return &QueryStateResponse{View: view}, nil
}

func (s *GameServer) ListGames(context.Context, *ListGamesRequest) (*ListGamesResponse, error) {
	return &ListGamesResponse{Games: s.svc.Games()}, nil
}

// RegisterGameServiceServer registers srv on r.
func RegisterGameServiceServer(r grpc.ServiceRegistrar, srv GameServiceServer) {
	r.RegisterService(&gameServiceDesc, srv)
}

var gameServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GameServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateGame", Handler: unaryHandler("CreateGame", GameServiceServer.CreateGame)},
		{MethodName: "SubmitOrder", Handler: unaryHandler("SubmitOrder", GameServiceServer.SubmitOrder)},
		{MethodName: "MarkReady", Handler: unaryHandler("MarkReady", GameServiceServer.MarkReady)},
		{MethodName: "GenerateTurn", Handler: unaryHandler("GenerateTurn", GameServiceServer.GenerateTurn)},
		{MethodName: "QueryState", Handler: unaryHandler("QueryState", GameServiceServer.QueryState)},
		{MethodName: "ListGames", Handler: unaryHandler("ListGames", GameServiceServer.ListGames)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stellarempires/v1/game_service",
}

func unaryHandler[Req, Resp any](method string, call func(GameServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(GameServiceServer), ctx, req.(*Req))
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}, handler)
	}
}

// GameServiceClient calls a remote game service.
type GameServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewGameServiceClient(cc grpc.ClientConnInterface) *GameServiceClient {
	return &GameServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GameServiceClient) CreateGame(ctx context.Context, in *CreateGameRequest, opts ...grpc.CallOption) (*CreateGameResponse, error) {
	return invoke[CreateGameResponse](ctx, c.cc, "CreateGame", in, opts)
}

func (c *GameServiceClient) SubmitOrder(ctx context.Context, in *SubmitOrderRequest, opts ...grpc.CallOption) (*SubmitOrderResponse, error) {
	return invoke[SubmitOrderResponse](ctx, c.cc, "SubmitOrder", in, opts)
}

func (c *GameServiceClient) MarkReady(ctx context.Context, in *MarkReadyRequest, opts ...grpc.CallOption) (*TurnResponse, error) {
	return invoke[TurnResponse](ctx, c.cc, "MarkReady", in, opts)
}

func (c *GameServiceClient) GenerateTurn(ctx context.Context, in *GenerateTurnRequest, opts ...grpc.CallOption) (*TurnResponse, error) {
	return invoke[TurnResponse](ctx, c.cc, "GenerateTurn", in, opts)
}

func (c *GameServiceClient) QueryState(ctx context.Context, in *QueryStateRequest, opts ...grpc.CallOption) (*QueryStateResponse, error) {
	return invoke[QueryStateResponse](ctx, c.cc, "QueryState", in, opts)
}

func (c *GameServiceClient) ListGames(ctx context.Context, in *ListGamesRequest, opts ...grpc.CallOption) (*ListGamesResponse, error) {
	return invoke[ListGamesResponse](ctx, c.cc, "ListGames", in, opts)
}
