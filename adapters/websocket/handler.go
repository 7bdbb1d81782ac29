package websocket

import (
	"github.com/labstack/echo/v4"
	"github.com/satriahrh/backbone/utils/log"
)

// Handler upgrades the "/ws" request and serves the renderer until it leaves.
func (s *Server) Handler(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := NewClient(conn, s.handleClientMessage)
	if !s.hub.Register(client, s.sendSnapshot) {
		client.Close()
		return nil
	}
	defer s.hub.Unregister(client)

	client.Run()

	log.WithCtx(client.Context()).Debug("Renderer connected")

	<-client.Context().Done()

	return nil
}
