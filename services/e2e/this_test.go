//go:build e2e

package main

import (
	"net/http"
	"testing"
	"time"

	"github.com/ozontech/allure-go/pkg/framework/provider"
	"github.com/ozontech/allure-go/pkg/framework/suite"
)

type E2EDuelFlowSuite struct {
	suite.Suite
}

func TestE2ESuite(t *testing.T) {
	suite.RunSuite(t, new(E2EDuelFlowSuite))
}

func (s *E2EDuelFlowSuite) TestDuelFlow(t provider.T) {
	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	if !waitForService(client) {
		t.Skip("service is not running")
	}

	t.Assert().NoError(runDuelFlow(client))
}
