package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// GATEWAY_ADDR is host:port of the HTTP/WebSocket listener; empty skips the suites
	GatewayAddr string `envconfig:"GATEWAY_ADDR"`
	GrpcAddr    string `envconfig:"GRPC_ADDR"`
	JWTSecret   string `envconfig:"JWT_SECRET"`
	// E2E_DEBUG_JSON dumps every frame and gRPC body as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
