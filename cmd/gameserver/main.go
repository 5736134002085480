// Package main provides the game server binary: the websocket room
// coordinator, its HTTP bootstrap routes, and the optional admin gRPC API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cory-johannsen/mimic/internal/admin"
	"github.com/cory-johannsen/mimic/internal/config"
	"github.com/cory-johannsen/mimic/internal/events"
	"github.com/cory-johannsen/mimic/internal/frontend/ws"
	"github.com/cory-johannsen/mimic/internal/game/dice"
	"github.com/cory-johannsen/mimic/internal/game/room"
	"github.com/cory-johannsen/mimic/internal/game/session"
	"github.com/cory-johannsen/mimic/internal/gameserver"
	"github.com/cory-johannsen/mimic/internal/observability"
	"github.com/cory-johannsen/mimic/internal/scripting"
	"github.com/cory-johannsen/mimic/internal/server"
	"github.com/cory-johannsen/mimic/internal/storage/postgres"
	mredis "github.com/cory-johannsen/mimic/internal/storage/redis"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting game server",
		zap.String("ws_addr", cfg.WebSocket.Addr()),
		zap.String("store", cfg.Game.Store),
		zap.String("broadcast", cfg.Game.Broadcast),
	)

	lifecycle := server.NewLifecycle(logger)

	var src dice.Source = dice.NewCryptoSource()
	if cfg.Game.RandomSeed != 0 {
		src = dice.NewSeededSource(cfg.Game.RandomSeed)
		logger.Warn("using seeded random source", zap.Uint64("seed", cfg.Game.RandomSeed))
	}
	src = dice.NewLoggedSource(src, logger)

	catalog := room.DefaultCatalog()
	if cfg.Game.SymbolsFile != "" {
		catalog, err = room.LoadCatalog(cfg.Game.SymbolsFile)
		if err != nil {
			logger.Fatal("loading symbol catalog", zap.String("path", cfg.Game.SymbolsFile), zap.Error(err))
		}
	}
	logger.Info("symbol catalog loaded", zap.Int("symbols", catalog.Len()))

	// Hints: scripted first, then the built-in close-name hinter.
	hinters := gameserver.HinterChain{}
	if cfg.Game.HintScriptDir != "" {
		lookup := func(emoji string) (string, bool) {
			sym, ok := catalog.Lookup(emoji)
			return sym.Name, ok
		}
		engine, err := scripting.NewHintEngine(cfg.Game.HintScriptDir, cfg.Game.HintInstructionLimit, lookup, logger)
		if err != nil {
			logger.Fatal("loading hint scripts", zap.String("dir", cfg.Game.HintScriptDir), zap.Error(err))
		}
		defer engine.Close()
		hinters = append(hinters, engine)
	}
	hinters = append(hinters, room.NewNameHinter(catalog))

	var redisClient *goredis.Client
	if cfg.Game.Store == config.StoreRedis || cfg.Game.Broadcast == config.BroadcastRedis {
		redisStart := time.Now()
		redisClient, err = mredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal("connecting to redis", zap.Error(err))
		}
		logger.Info("redis connected",
			zap.String("addr", cfg.Redis.Addr),
			zap.Duration("elapsed", time.Since(redisStart)),
		)
	}

	var store room.Store
	switch cfg.Game.Store {
	case config.StorePostgres:
		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		if err := pool.Health(ctx, 5*time.Second); err != nil {
			logger.Fatal("database not ready", zap.Error(err))
		}
		store = pool.Rooms()
		lifecycle.Add("postgres", healthService("database", logger, func(ctx context.Context) error {
			return pool.Health(ctx, 5*time.Second)
		}, func() error {
			pool.Close()
			return nil
		}))
	case config.StoreRedis:
		store = mredis.NewRoomStore(redisClient, cfg.Redis.TxRetries)
	default:
		store = room.NewMemoryStore()
	}

	group := session.NewGroup(logger)
	var bc gameserver.Broadcaster
	var relay *mredis.Relay
	if cfg.Game.Broadcast == config.BroadcastRedis {
		relay = mredis.NewRelay(redisClient, gameserver.JSONCodec{}, group, cfg.Redis.ChannelPrefix, logger)
		bc = relay
	} else {
		bc = gameserver.NewLocalBroadcaster(group)
	}
	if redisClient != nil {
		lifecycle.Add("redis", healthService("redis", logger, func(ctx context.Context) error {
			return mredis.Health(ctx, redisClient, 5*time.Second)
		}, func() error {
			if relay != nil {
				if err := relay.Close(); err != nil {
					logger.Warn("closing relay", zap.Error(err))
				}
			}
			return redisClient.Close()
		}))
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled {
		publisher = events.NewKafkaPublisher(cfg.Kafka, logger)
		logger.Info("room events enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	coord := gameserver.NewCoordinator(store, bc, src, catalog, hinters, publisher, gameserver.Options{
		Settings: room.Settings{
			Timer:  cfg.Game.DefaultTimer,
			Rounds: cfg.Game.DefaultRounds,
		},
		SendBuffer: cfg.WebSocket.SendBuffer,
		RateLimit:  rate.Limit(cfg.WebSocket.MessagesPerSecond),
		RateBurst:  cfg.WebSocket.Burst,
	}, logger)

	wsServer := ws.NewServer(cfg.WebSocket, coord, coord, logger)
	lifecycle.Add("websocket", &server.FuncService{
		StartFn: wsServer.ListenAndServe,
		StopFn: func(ctx context.Context) error {
			if err := wsServer.Stop(ctx); err != nil {
				return err
			}
			if err := coord.Wait(ctx); err != nil {
				return fmt.Errorf("waiting for sessions: %w", err)
			}
			return publisher.Close()
		},
	})

	if cfg.Admin.Enabled {
		grpcServer := admin.NewServer(admin.NewService(coord, logger), logger)
		lifecycle.Add("admin", &server.FuncService{
			StartFn: func() error {
				lis, err := net.Listen("tcp", cfg.Admin.Addr())
				if err != nil {
					return fmt.Errorf("listening on %s: %w", cfg.Admin.Addr(), err)
				}
				logger.Info("admin gRPC server listening",
					zap.String("addr", lis.Addr().String()),
				)
				return grpcServer.Serve(lis)
			},
			StopFn: func(context.Context) error {
				grpcServer.GracefulStop()
				return nil
			},
		})
	}

	logger.Info("game server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("ws_addr", cfg.WebSocket.Addr()),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

// healthService probes a backend every 30 seconds until stopped, then
// releases it with closeFn.
func healthService(name string, logger *zap.Logger, probe func(context.Context) error, closeFn func() error) *server.FuncService {
	quit := make(chan struct{})
	return &server.FuncService{
		StartFn: func() error {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-quit:
					return nil
				case <-ticker.C:
					if err := probe(context.Background()); err != nil {
						logger.Warn("health check failed", zap.String("backend", name), zap.Error(err))
					}
				}
			}
		},
		StopFn: func(context.Context) error {
			close(quit)
			return closeFn()
		},
	}
}
