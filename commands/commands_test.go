package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"nester/config"
	"nester/coordinator"
	"nester/handlers"
	"nester/models"
	"nester/query"
	"nester/store"
)

type CommandsSuite struct {
	suite.Suite
	dsn   string
	store *store.Store
	srv   *httptest.Server
}

func TestCommandsSuite(t *testing.T) {
	gin.SetMode(gin.TestMode)
	suite.Run(t, &CommandsSuite{})
}

func (s *CommandsSuite) SetupTest() {
	s.dsn = filepath.Join(s.T().TempDir(), "nester.db")
	s.T().Setenv("NESTER_DB_DSN", s.dsn)
	s.T().Setenv("NESTER_LOG_FORMAT", "json")

	st, err := store.Open(config.Database{
		Driver:      config.DriverSQLite,
		DSN:         s.dsn,
		BusyTimeout: 5 * time.Second,
	}, zerolog.Nop())
	s.Require().NoError(err)
	s.Require().NoError(st.EnsureSchema(context.TODO()))
	engine, err := query.New(st)
	s.Require().NoError(err)
	coord, err := coordinator.New(st, engine, zerolog.Nop())
	s.Require().NoError(err)

	s.store = st
	s.srv = httptest.NewServer(handlers.NewRouter(handlers.NewScanHandler(coord), zerolog.Nop()))
}

func (s *CommandsSuite) TearDownTest() {
	s.srv.Close()
	s.NoError(s.store.Close())
}

func (s *CommandsSuite) execute(stdin string, args ...string) (string, error) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.TODO())
	return out.String(), err
}

func (s *CommandsSuite) TestPushAndResults() {
	out, err := s.execute(`{"franchise_id": "site-A", "ip_address": "10.0.0.5", "scan_data": {"hosts": 3}}`,
		"push", "--url", s.srv.URL, "--log-level", "error")
	s.Require().NoError(err)
	s.Equal("success\n", out)

	_, err = s.execute(`{"franchise_id": "site-B", "ip_address": "10.0.0.6", "scan_data": {}}`,
		"push", "--url", s.srv.URL, "--log-level", "error")
	s.Require().NoError(err)

	out, err = s.execute("", "results", "--search", "site-A", "--json", "--log-level", "error")
	s.Require().NoError(err)
	var rows []models.ScanResult
	s.Require().NoError(json.Unmarshal([]byte(out), &rows))
	s.Require().Len(rows, 1)
	s.Equal("site-A", rows[0].FranchiseID)

	out, err = s.execute("", "results", "--log-level", "error")
	s.Require().NoError(err)
	s.Contains(out, "Franchise ID")
	s.Contains(out, "site-A")
	s.Contains(out, "site-B")
}

func (s *CommandsSuite) TestPushRejected() {
	_, err := s.execute(`{}`, "push", "--url", s.srv.URL, "--log-level", "error")
	s.Require().Error(err)
	s.Contains(err.Error(), "missing field: franchise_id")
}

func (s *CommandsSuite) TestInvalidConfig() {
	s.T().Setenv("NESTER_DB_DRIVER", "postgres")
	_, err := s.execute("", "results")
	s.Error(err)
}
