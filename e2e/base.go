package e2e

import (
	"chat-gateway/auth"
	"chat-gateway/domain/chat"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

const frameTimeout = 5 * time.Second

type BaseGatewaySuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment and skips when no gateway is configured.
func (s *BaseGatewaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.GatewayAddr == "" {
		s.T().Skip("GATEWAY_ADDR not set")
	}
}

func (s *BaseGatewaySuite) header(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// Client is one user's WebSocket connection to a room.
type Client struct {
	t    *testing.T
	user chat.UserID
	conn *websocket.Conn
	dump bool
}

// Join opens a WebSocket for user in room with a freshly signed token.
func (s *BaseGatewaySuite) Join(name string, room chat.RoomID, user chat.UserID) *Client {
	s.header(s.T(), name)
	token, err := auth.GenerateToken(s.Config.JWTSecret, user, time.Minute)
	s.Require().NoError(err)

	target := url.URL{
		Scheme:   "ws",
		Host:     s.Config.GatewayAddr,
		Path:     "/ws/" + string(room),
		RawQuery: url.Values{"token": {token}}.Encode(),
	}
	conn, resp, err := websocket.DefaultDialer.Dial(target.String(), nil)
	s.Require().NoError(err, "dial %s", target.Redacted())
	_ = resp.Body.Close()
	client := &Client{t: s.T(), user: user, conn: conn, dump: s.Config.DebugJSON}
	s.T().Cleanup(func() { _ = conn.Close() })
	return client
}

func (c *Client) Send(frame any) {
	c.t.Helper()
	payload, err := json.Marshal(frame)
	if err != nil {
		c.t.Fatal(err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.t.Fatal(err)
	}
}

// Next reads frames until one of the wanted type shows up.
func (c *Client) Next(wanted chat.EnvelopeType) map[string]any {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(frameTimeout))
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.t.Fatalf("%s waiting for %s: %v", c.user, wanted, err)
		}
		if c.dump {
			c.t.Logf("WS %s <- %s", c.user, payload)
		}
		var frame map[string]any
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.t.Fatal(err)
		}
		if frame["type"] == string(wanted) {
			return frame
		}
	}
}

func (c *Client) Leave() {
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.conn.Close()
}

// WithHealth provides a gRPC health client that logs every call.
func (s *BaseGatewaySuite) WithHealth(name string, fn func(ctx context.Context, client healthpb.HealthClient)) {
	if s.Config.GrpcAddr == "" {
		s.T().Skip("GRPC_ADDR not set")
	}
	s.header(s.T(), name)

	marshaler := protojson.MarshalOptions{UseProtoNames: true, Multiline: true, EmitUnpopulated: true}
	conn, err := grpc.NewClient(s.Config.GrpcAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			start := time.Now()
			err := invoker(ctx, method, req, reply, cc, opts...)

			logBuilder := strings.Builder{}
			fmt.Fprintf(&logBuilder, "GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))
			if s.Config.DebugJSON && err == nil {
				fmt.Fprintln(&logBuilder, "\nRESPONSE:")
				fmt.Fprintln(&logBuilder, marshaler.Format(reply.(proto.Message)))
			}
			s.T().Log(logBuilder.String())
			return err
		}),
	)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.GrpcAddr)
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fn(ctx, healthpb.NewHealthClient(conn))
}
