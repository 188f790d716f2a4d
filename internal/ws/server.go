package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"economicgoose/internal/auction"
	"economicgoose/internal/gametime"
	"economicgoose/internal/music"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 12 * time.Second
	pingPeriod = 3 * time.Second // must be < pongWait
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // dev-only
}

// ConnContext carries per-connection identity into the handlers.
type ConnContext struct {
	PlayerID string
	Server   *WsServer
}

type WsServer struct {
	hub        *Hub
	router     *Router
	controller *auction.Controller
	gameClock  *gametime.Clock
	player     *music.Player
}

func NewWsServer(h *Hub, controller *auction.Controller, gameClock *gametime.Clock, player *music.Player) *WsServer {
	srv := &WsServer{
		hub:        h,
		router:     NewRouter(),
		controller: controller,
		gameClock:  gameClock,
		player:     player,
	}
	srv.registerHandlers() // ← all WS endpoints configured here
	return srv
}

// ---------------------------------------------------------------------------
//  Public: Gin entry-point
// ---------------------------------------------------------------------------

func (s *WsServer) Handle(ginCtx *gin.Context) {
	playerID := ginCtx.Query("player_id")
	if playerID == "" {
		ginCtx.JSON(http.StatusBadRequest, gin.H{"error": "player_id is required"})
		return
	}

	rawConn, err := upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.accept", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(512)

	// ─────────────────── Client joined ────────────────────────
	wsConn := &clientConn{rawConn: rawConn}
	s.hub.Join(TopicGame, wsConn)

	if err := s.pushInitialSnapshot(wsConn); err != nil {
		zap.L().Warn("ws.snapshot", zap.Error(err))
	}

	go s.reader(playerID, wsConn)
	go s.pinger(wsConn)
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *WsServer) registerHandlers() {
	// 🔹 auctions ------------------------------------------------------------
	Register(
		s.router,
		"auctions/list",
		func(ctx context.Context, cc *ConnContext, _ AckBody) ([]auction.ListEntry, error) {
			return s.controller.LoadAvailableAuctions(ctx)
		},
	)
	Register(
		s.router,
		"auctions/join",
		func(ctx context.Context, cc *ConnContext, req JoinRequest) (*auction.Auction, error) {
			if err := s.controller.JoinAuction(ctx, req.AuctionID); err != nil {
				return nil, err
			}
			return s.controller.CurrentAuction(), nil
		},
	)
	Register(
		s.router,
		"auctions/bid",
		func(ctx context.Context, cc *ConnContext, req BidRequest) (AckBody, error) {
			return AckBody{}, s.controller.PlaceBid(ctx, req.Amount)
		},
	)
	Register(
		s.router,
		"auctions/finish",
		func(ctx context.Context, cc *ConnContext, _ AckBody) (AckBody, error) {
			return AckBody{}, s.controller.FinishAuction(ctx)
		},
	)
	Register(
		s.router,
		"auctions/leave",
		func(ctx context.Context, cc *ConnContext, _ AckBody) (AckBody, error) {
			s.controller.LeaveAuction()
			return AckBody{}, nil
		},
	)

	// 🔹 game clock ----------------------------------------------------------
	Register(
		s.router,
		"time/pause",
		func(ctx context.Context, cc *ConnContext, _ AckBody) (gametime.GameTime, error) {
			s.gameClock.TogglePause()
			return s.gameClock.Now(), nil
		},
	)
	Register(
		s.router,
		"time/speed",
		func(ctx context.Context, cc *ConnContext, _ AckBody) (map[string]int, error) {
			return map[string]int{"acceleration": s.gameClock.ToggleFastForward()}, nil
		},
	)
	Register(
		s.router,
		"time/skip_day",
		func(ctx context.Context, cc *ConnContext, _ AckBody) (gametime.GameTime, error) {
			s.gameClock.SkipToNextDay()
			return s.gameClock.Now(), nil
		},
	)

	// 🔹 music ---------------------------------------------------------------
	Register(
		s.router,
		"music/next",
		func(ctx context.Context, cc *ConnContext, _ AckBody) (AckBody, error) {
			go s.player.TrackFinished()
			return AckBody{}, nil
		},
	)
	Register(
		s.router,
		"music/previous",
		func(ctx context.Context, cc *ConnContext, _ AckBody) (AckBody, error) {
			go func() {
				if err := s.player.Previous(); err != nil {
					zap.L().Warn("music_previous", zap.Error(err))
				}
			}()
			return AckBody{}, nil
		},
	)
	Register(
		s.router,
		"music/volume",
		func(ctx context.Context, cc *ConnContext, req VolumeRequest) (AckBody, error) {
			if req.Master != nil {
				s.player.SetMasterVolume(*req.Master)
			}
			if req.Music != nil {
				s.player.SetMusicVolume(*req.Music)
			}
			return AckBody{}, nil
		},
	)
}

func (s *WsServer) pushInitialSnapshot(conn *clientConn) error {
	if err := conn.writeJSON(gin.H{
		"event": "time/state",
		"body":  s.gameClock.Now(),
	}); err != nil {
		return err
	}
	if snap := s.controller.CurrentAuction(); snap != nil {
		return conn.writeJSON(gin.H{
			"event": "auctions/snapshot",
			"body":  snap,
		})
	}
	if entries := s.controller.AvailableAuctions(); len(entries) > 0 {
		return conn.writeJSON(gin.H{
			"event": "auctions/list",
			"body":  entries,
		})
	}
	return nil
}

func (s *WsServer) reader(playerID string, conn *clientConn) {
	defer s.hub.Leave(TopicGame, conn)

	cc := &ConnContext{PlayerID: playerID, Server: s}

	for {
		_, data, err := conn.rawConn.ReadMessage()
		if err != nil {
			return // client closed or errored
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			_ = conn.writeJSON(map[string]any{
				"event": "error",
				"body":  ErrorBody{Error: "bad_envelope"},
			})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1900*time.Millisecond)
		res, err := s.router.dispatch(ctx, cc, env)
		cancel()

		// ---- error -> {"event":"error", "body":{...}} ---------------
		if err != nil {
			_ = conn.writeJSON(map[string]any{
				"event": "error",
				"body":  ErrorBody{Error: err.Error()},
			})
			continue
		}

		// ---- success -> {"event":"<evt>-ack", "body":{...}} --------
		reply := map[string]any{"event": env.Event + "-ack"}
		if res != nil {
			reply["body"] = res
		}
		_ = conn.writeJSON(reply)
	}
}

func (s *WsServer) pinger(conn *clientConn) {
	_ = conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	conn.rawConn.SetPongHandler(func(string) error {
		return conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.write(websocket.PingMessage, nil); err != nil {
			_ = conn.rawConn.Close()
			return
		}
	}
}
