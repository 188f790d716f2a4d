package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"economicgoose/internal/auction"
	"economicgoose/internal/config"
	"economicgoose/internal/database/db_client"
	"economicgoose/internal/gametime"
	"economicgoose/internal/gateway"
	"economicgoose/internal/gateway/pg_gateway"
	"economicgoose/internal/gateway/redis_feed"
	"economicgoose/internal/http/gamehandler"
	"economicgoose/internal/http/http_server"
	"economicgoose/internal/music"
	"economicgoose/internal/redis/redis_client"
	"economicgoose/internal/services/atelier"
	"economicgoose/internal/services/bank"
	"economicgoose/internal/services/character"
	"economicgoose/internal/services/company"
	"economicgoose/internal/services/economy"
	"economicgoose/internal/services/pantry"
	"economicgoose/internal/services/profile"
	"economicgoose/internal/services/warehouse"
	"economicgoose/internal/ws"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Redis
	redisClient, err := redis_client.NewRedisClient(cfg.RedisHost, int(cfg.RedisPort), cfg.RedisPoolSize)
	if err != nil {
		Log.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()
	Log.Debug("Redis client created successfully")

	// 4. Postgres db client
	pgDb, err := db_client.Open(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb, cfg.PostgresMaxConns)
	if err != nil {
		Log.Fatal("pg-open", zap.Error(err))
	}
	defer pgDb.Close()

	// 5. Backend gateway: rows and procedures over Postgres, change feed
	//    over Redis pub/sub.
	pg := pg_gateway.New(pgDb)
	remote := gateway.Remote{
		Rows:  pg,
		Procs: pg,
		Feed:  redis_feed.New(redisClient),
	}

	// 6. Player profile: everything else keys off its identity and wallet.
	profileStore := profile.NewStore(pg)
	if _, err := profileStore.Load(ctx, cfg.PlayerID, cfg.PlayerEmail, cfg.PlayerUsername, cfg.PlayerFullName); err != nil {
		Log.Fatal("profile-load", zap.Error(err))
	}

	wallClock := clockwork.NewRealClock()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	// 7. WebSockets hub; controller events fan out through it.
	hub := ws.NewHub()

	controller := auction.NewController(remote, profileStore,
		auction.WithClock(wallClock),
		auction.WithNotify(ws.AuctionEventBroadcaster(hub)),
	)
	defer controller.Reset()

	// 8. Game stores.
	companyStore := company.NewStore(profileStore)

	bankStore := bank.NewStore(pg, profileStore, companyStore, wallClock)
	if err := bankStore.Load(ctx); err != nil {
		Log.Fatal("bank-load", zap.Error(err))
	}

	warehouseStore := warehouse.NewStore(pg, profileStore, wallClock)
	if err := warehouseStore.Load(ctx); err != nil {
		Log.Fatal("warehouse-load", zap.Error(err))
	}

	economyStore := economy.NewStore(rng)

	characterStore := character.NewStore(cfg.StateDir)
	if err := characterStore.Load(); err != nil {
		Log.Fatal("character-load", zap.Error(err))
	}

	pantryStore := pantry.NewStore(cfg.StateDir, cfg.PlayerID)
	pantryStore.Load()

	atelierStore := atelier.NewStore(pg, profileStore, warehouseStore, wallClock, rng)
	if err := atelierStore.Load(ctx); err != nil {
		Log.Fatal("atelier-load", zap.Error(err))
	}

	// 9. Game clock: ticks fan out to clients, day and month boundaries
	//    drive the simulation.
	var gameClock *gametime.Clock
	timeBroadcast := ws.TimeBroadcaster(hub)
	gameClock = gametime.New(wallClock, rng, cfg.StateDir, gametime.Hooks{
		OnTick: timeBroadcast,
		OnDay: func(day int) {
			dayCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			companyStore.ChargeDailyFees(dayCtx)
			economyStore.SetSeason(economy.Season(gameClock.CurrentSeason()))
			economyStore.DailyUpdate()
			atelierStore.ProcessDay(dayCtx)
		},
		OnMonth: func(day int) {
			monthCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			bankStore.ProcessMonth(monthCtx, wallClock.Now())
			atelierStore.ProcessMonth(monthCtx)
		},
	})
	gameClock.Load()
	economyStore.SetSeason(economy.Season(gameClock.CurrentSeason()))
	gameClock.Start(ctx)
	defer func() {
		gameClock.Stop()
		if err := gameClock.Save(); err != nil {
			Log.Warn("gametime-save", zap.Error(err))
		}
	}()

	// 10. Background music.
	player := music.NewPlayer(music.NewLogSink(), wallClock, music.DefaultPlaylist())
	go player.Run(ctx)
	go func() {
		if err := player.Play(); err != nil {
			Log.Warn("music-start", zap.Error(err))
		}
	}()

	// 11. WS + HTTP servers.
	wsSrv := ws.NewWsServer(hub, controller, gameClock, player)
	restHandler := gamehandler.New(
		controller, profileStore, bankStore, warehouseStore,
		characterStore, companyStore, economyStore, pantryStore, atelierStore,
	)

	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, restHandler)
	go func() {
		<-ctx.Done()
		_ = httpServer.Dispose()
	}()
	if err := httpServer.Start(); err != nil {
		Log.Error("http-server", zap.Error(err))
	}
}
