package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"
	"golang.org/x/net/websocket"

	"chat-gateway/domain/event"
)

type testChatFlowSuite struct {
	suite.Suite
	Config Config
}

func TestChatFlowSuite(t *testing.T) {
	suite.Run(t, &testChatFlowSuite{})
}

func (s *testChatFlowSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.GatewayURL == "" {
		s.T().Skip("GATEWAY_URL not set, skipping e2e suite")
	}
	if s.Config.WsURL == "" {
		s.Config.WsURL = "ws" + strings.TrimPrefix(s.Config.GatewayURL, "http") + "/ws"
	}
}

func (s *testChatFlowSuite) step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

func (s *testChatFlowSuite) dial() *websocket.Conn {
	conn, err := websocket.Dial(s.Config.WsURL, "", s.Config.GatewayURL)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *testChatFlowSuite) waitFor(conn *websocket.Conn, want event.Type) event.Event {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
	for {
		var e event.Event
		s.Require().NoError(websocket.JSON.Receive(conn, &e))
		if e.Type == want {
			return e
		}
	}
}

func (s *testChatFlowSuite) TestFullChatFlow() {
	alice := "alice-" + uuid.NewString()[:8]
	bob := "bob-" + uuid.NewString()[:8]
	content := "hello from " + alice

	s.step("Step 1: Alice joins and receives the roster")
	connA := s.dial()
	s.Require().NoError(websocket.JSON.Send(connA, event.Event{Type: event.TypeJoin, Username: alice}))
	roster := s.waitFor(connA, event.TypeUserList)
	s.Require().Contains(roster.Users, alice)

	s.step("Step 2: Bob joins, Alice sees the announcement")
	connB := s.dial()
	s.Require().NoError(websocket.JSON.Send(connB, event.Event{Type: event.TypeJoin, Username: bob}))
	s.waitFor(connB, event.TypeUserList)
	joined := s.waitFor(connA, event.TypeUserJoined)
	s.Require().Equal(bob, joined.Username)

	s.step("Step 3: Messages reach both participants")
	s.Require().NoError(websocket.JSON.Send(connA, event.Event{Type: event.TypeMessage, Content: content}))
	msg := s.waitFor(connB, event.TypeMessage)
	s.Require().Equal(alice, msg.Username)
	s.Require().Equal(content, msg.Content)
	s.waitFor(connA, event.TypeMessage)

	s.step("Step 4: The transcript API shows the message")
	resp, err := http.Get(s.Config.GatewayURL + "/api/messages?limit=50")
	s.Require().NoError(err)
	defer resp.Body.Close()
	var page struct {
		Messages []event.Event `json:"messages"`
		Count    int           `json:"count"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&page))
	s.Require().GreaterOrEqual(page.Count, 1)

	s.step("Step 5: A duplicate username is rejected")
	connDup := s.dial()
	s.Require().NoError(websocket.JSON.Send(connDup, event.Event{Type: event.TypeJoin, Username: alice}))
	errEvent := s.waitFor(connDup, event.TypeError)
	s.Require().Contains(errEvent.Content, "taken")

	s.step("Step 6: Bob leaves, Alice sees the departure")
	s.Require().NoError(websocket.JSON.Send(connB, event.Event{Type: event.TypeLeave}))
	left := s.waitFor(connA, event.TypeUserLeft)
	s.Require().Equal(bob, left.Username)
}
