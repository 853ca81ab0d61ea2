package infrastructure

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"

	"panelbill/internal/config"
	"panelbill/internal/controlplane"
	"panelbill/internal/ledger"
	"panelbill/internal/lifecycle"
	"panelbill/internal/notify"
	"panelbill/internal/repository"
	"panelbill/internal/resilience"
	"panelbill/internal/rewards"
	"panelbill/internal/scheduler"
	transportHTTP "panelbill/internal/transport/http"
)

// Bootstrap initialises all dependencies from config and wires up the
// engine. Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	db, err := connectPostgres(cfg.DSN())
	if err != nil {
		return nil, nil, err
	}

	rdb, err := connectRedis(cfg.RedisAddr())
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	var cleanupFns []func()
	cleanupFns = append(cleanupFns, func() {
		db.Close()
		_ = rdb.Close()
	})

	store := repository.NewStore(db)

	// Resilience layer: everything that talks to the control plane goes
	// queue → breaker → retry, and liveness answers are cached.
	queue := resilience.NewQueue(cfg.QueueLimit, cfg.QueueWaitTimeout, cfg.ControlPlaneTimeout)
	breakers := resilience.NewBreakerSet(cfg.BreakerFailures, cfg.BreakerCooldown)
	cache := resilience.NewCache(resilience.NewRedisKV(rdb), "panelbill:")
	plane := controlplane.NewResilient(
		controlplane.NewHTTPClient(cfg.ControlPlaneURL, cfg.ControlPlaneToken, cfg.ControlPlaneTimeout),
		queue,
		breakers,
		controlplane.WithLivenessCache(cache, cfg.LivenessCacheTTL),
	)

	// Notifications: NATS when configured, otherwise dropped.
	var dispatcher notify.Dispatcher = notify.Nop{}
	var natsConn *nats.Conn
	if natsURL, natsErr := cfg.NatsAddr(); natsErr == nil {
		nc, err := connectNats(natsURL)
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		cleanupFns = append(cleanupFns, nc.Close)
		dispatcher = notify.NewBusDispatcher(notify.NewNATSBus(nc))
		natsConn = nc
	} else {
		slog.Info("running without NATS, notifications disabled", "reason", natsErr)
	}

	lg := ledger.NewService(store, ledger.WithPublisher(dispatcher))
	machine := lifecycle.NewMachine(store, plane, dispatcher)
	sched := scheduler.New(store, store, lg, machine, plane)

	var servers []Server
	servers = append(servers, sched)
	if natsConn != nil {
		servers = append(servers, rewards.NewWorker(lg, natsConn))
	}
	if opsAddr, opsErr := cfg.OpsAddr(); opsErr == nil {
		afk := rewards.NewAFKManager(lg, cfg.AFKCoinsPerMinute)
		handler := transportHTTP.NewHandler(sched, lg, db, afk)
		servers = append(servers, transportHTTP.NewServer(opsAddr, handler))
	}

	return NewApp(servers), runCleanup(cleanupFns), nil
}

// runCleanup returns a single function that calls all cleanup functions
// in reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
