package topicroute

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ConfigSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) TestDefaults() {
	cfg, err := ParseConfig(nil)

	s.Require().NoError(err)
	s.Assert().Equal(DefaultConfig(), cfg)
	s.Assert().Equal(AcceptUnmatched, cfg.UnmatchedRoutePolicy)
}

func (s *ConfigSuite) TestParse() {
	cfg, err := ParseConfig([]byte("unmatched_route_policy: reject\npayload_codec: proto\nlog_level: debug\n"))

	s.Require().NoError(err)
	s.Assert().Equal(RejectUnmatched, cfg.UnmatchedRoutePolicy)
	s.Assert().Equal("proto", cfg.PayloadCodec)

	level, err := cfg.Level()
	s.Require().NoError(err)
	s.Assert().Equal(slog.LevelDebug, level)
}

func (s *ConfigSuite) TestPartialKeepsDefaults() {
	cfg, err := ParseConfig([]byte("log_level: warn\n"))

	s.Require().NoError(err)
	s.Assert().Equal(AcceptUnmatched, cfg.UnmatchedRoutePolicy)
	s.Assert().Equal("json", cfg.PayloadCodec)
}

func (s *ConfigSuite) TestInvalid() {
	tests := map[string]string{
		"policy":    "unmatched_route_policy: drop\n",
		"codec":     "payload_codec: xml\n",
		"log level": "log_level: loud\n",
		"yaml":      "unmatched_route_policy: [reject\n",
	}

	for name, raw := range tests {
		s.Run(name, func() {
			_, err := ParseConfig([]byte(raw))
			s.Assert().ErrorIs(err, ErrInvalidConfig)
		})
	}
}

func (s *ConfigSuite) TestLoadConfig() {
	path := filepath.Join(s.T().TempDir(), "router.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("unmatched_route_policy: reject\n"), 0o600))

	cfg, err := LoadConfig(path)

	s.Require().NoError(err)
	s.Assert().Equal(RejectUnmatched, cfg.UnmatchedRoutePolicy)

	_, err = LoadConfig(filepath.Join(s.T().TempDir(), "missing.yaml"))
	s.Assert().Error(err)
}

func (s *ConfigSuite) TestOptions() {
	cfg := DefaultConfig()
	cfg.UnmatchedRoutePolicy = RejectUnmatched
	cfg.PayloadCodec = "proto"

	r := New(append(cfg.Options(), WithLogger(discardLogger()))...)

	s.Assert().False(r.allowUnmatched)
	s.Assert().Equal("proto", r.codec.Name())
}
