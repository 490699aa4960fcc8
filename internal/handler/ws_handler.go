package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/teamloop/teamloop/internal/model"
	"github.com/teamloop/teamloop/internal/realtime"
	"github.com/teamloop/teamloop/pkg/database"
	"github.com/teamloop/teamloop/pkg/jwtutil"
	"github.com/teamloop/teamloop/pkg/logger"
	"github.com/teamloop/teamloop/prometheus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers cannot set headers on websocket requests, so origins are not
	// restricted here; the token is the authentication boundary.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the connection and authenticates it with the same signed
// token as REST, taken from the token query parameter or the Authorization
// header. A bad token gets a single auth:error frame and an immediate close;
// the server never retries, the client reconnects with a fresh token.
func ServeWS(c echo.Context) error {
	log := logger.FromContext(c)

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Error("Websocket upgrade failed", zap.Error(err))
		return nil
	}

	token := c.QueryParam("token")
	if token == "" {
		authHeader := c.Request().Header.Get("Authorization")
		if parts := strings.Split(authHeader, " "); len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			token = parts[1]
		}
	}

	cl, err := jwtutil.ValidateToken(token)
	if err != nil || cl.TokenType != jwtutil.TokenTypeAccess {
		prometheus.RecordAuthError("invalid_socket_token")
		closeWithAuthError(conn)
		return nil
	}

	client := realtime.NewClient(conn, cl.UserID, cl.TenantID)
	hub.Register(client)
	hub.Join(client.ID(), realtime.UserRoom(cl.UserID))

	// Join the rooms of every channel the user currently belongs to
	var memberships []model.ChannelMember
	if result := database.GetDB().Where("user_id = ?", cl.UserID).Find(&memberships); result.Error != nil {
		log.Error("Failed to load memberships for socket", zap.Error(result.Error))
	}
	for _, m := range memberships {
		hub.Join(client.ID(), realtime.ChannelRoom(m.ChannelID))
	}

	log.Info("Websocket client connected",
		zap.String("conn_id", client.ID()),
		zap.Uint("user_id", cl.UserID),
		zap.Int("channels", len(memberships)))

	go client.WritePump()
	client.ReadPump(hub)
	return nil
}

func closeWithAuthError(conn *websocket.Conn) {
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	conn.WriteJSON(realtime.Event{
		Event: realtime.EventAuthError,
		Data:  echo.Map{"message": "invalid or expired token"},
	})
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "auth failed"))
	conn.Close()
}
