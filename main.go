package main

import (
	"context"
	"hash/fnv"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"teamchat/global/config"
	"teamchat/logger"
	"teamchat/module/messaging/api"
	"teamchat/module/messaging/dispatch"
	"teamchat/module/messaging/presence"
	"teamchat/module/messaging/roster"
	"teamchat/module/messaging/service"
	"teamchat/module/messaging/unread"
	"teamchat/service/eventbus"
	"teamchat/service/mgo"
	"teamchat/service/realtime"
	"teamchat/service/realtime/handlers"
	"teamchat/service/storage"
	redisconn "teamchat/service/storage/redis"
	"teamchat/tools/ids"
	"teamchat/tools/safe"
	"teamchat/tools/security"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("load config: %v", err)
		os.Exit(1)
	}
	ids.SetNodeID(nodeIDFrom(cfg.NodeID))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redisconn.New(redisconn.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		logger.Errorf("redis connect: %v", err)
		os.Exit(1)
	}

	db, err := mgo.Connect(rootCtx, mgo.Config{
		URI:         cfg.Mongo.URI,
		Database:    cfg.Mongo.Database,
		Username:    cfg.Mongo.Username,
		Password:    cfg.Mongo.Password,
		MaxPoolSize: cfg.Mongo.MaxPoolSize,
	})
	if err != nil {
		logger.Errorf("mongo connect: %v", err)
		os.Exit(1)
	}

	rosterStore := roster.NewStore(db)
	resolver := roster.NewResolver(rosterStore)

	tracker := presence.NewTracker(
		presence.NewStore(db),
		storage.NewPresenceStore(rdb, cfg.Presence.TTL),
	)
	ledger := unread.NewLedger(unread.NewStore(db), storage.NewUnreadMirror(rdb))

	// The registry and the dispatcher reference each other, so the
	// presence side binds after both exist.
	registry := realtime.NewRegistry(realtime.Config{
		SendQueueSize: cfg.Gateway.SendQueueSize,
		FanoutWorkers: cfg.Gateway.FanoutWorkers,
		FanoutQueue:   cfg.Gateway.FanoutQueue,
	}, resolver, nil)
	dispatcher := dispatch.NewDispatcher(registry, resolver, ledger, tracker)
	registry.BindPresence(dispatcher)

	onEvent := func(ctx context.Context, ev dispatch.Event) {
		if err := dispatcher.Handle(ctx, ev); err != nil {
			logger.Errorf("dispatch %s event %s: %v", ev.Type, ev.ID, err)
		}
	}
	var bus eventbus.Bus
	if cfg.Kafka.Enabled {
		bus, err = eventbus.NewKafkaBus(eventbus.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			GroupID: cfg.Kafka.GroupID,
			Topic:   cfg.Kafka.Topic,
		}, onEvent)
		if err != nil {
			logger.Errorf("kafka bus: %v", err)
			os.Exit(1)
		}
	} else {
		bus = eventbus.NewLoopback(onEvent, 4096)
	}

	msgSvc := service.NewMessageService(
		service.NewMessageStore(db),
		resolver,
		rosterStore,
		ledger,
		bus,
		dispatcher,
	)

	jwt := security.DefaultOptions([]byte(cfg.JWTSecret))
	mux := realtime.NewHandlerMux()
	handlers.RegisterAll(mux, handlers.Deps{
		Messenger:   msgSvc,
		TypingRelay: dispatcher,
		Authorizer:  resolver,
		Heartbeater: tracker,
	})
	ws := realtime.NewWSServer(registry, mux, jwt)

	safe.Go("presence-sweep", func() {
		sweepLoop(rootCtx, tracker, dispatcher, cfg.Presence.StaleAfter, cfg.Presence.SweepEvery)
	})

	r := gin.New()
	r.Use(gin.Recovery())
	api.New(msgSvc, tracker, jwt).RegisterRoutes(r, ws.HandleWS)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	safe.Go("http-server", func() {
		logger.Infof("listening on %s node=%s", cfg.HTTPAddr, cfg.NodeID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http server: %v", err)
			stop()
		}
	})

	<-rootCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	if err := bus.Close(); err != nil {
		logger.Warnf("bus close: %v", err)
	}
	_ = rdb.Close()
}

// sweepLoop periodically flips users silent past the stale window to
// offline and broadcasts each transition once.
func sweepLoop(ctx context.Context, tracker *presence.Tracker, d *dispatch.Dispatcher, staleAfter, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			flipped, err := tracker.SweepStale(ctx, staleAfter)
			if err != nil {
				logger.Warnf("presence sweep: %v", err)
				continue
			}
			for _, rec := range flipped {
				d.BroadcastPresence(ctx, rec)
			}
		}
	}
}

// nodeIDFrom folds the configured node name into the snowflake node space.
func nodeIDFrom(name string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum32() % 1024)
}
