package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tippinbit/tippind/internal/balance"
	"github.com/tippinbit/tippind/internal/borrow"
	"github.com/tippinbit/tippind/internal/collateral"
	"github.com/tippinbit/tippind/internal/pricefeed"
	"github.com/tippinbit/tippind/internal/server"
	"github.com/tippinbit/tippind/internal/server/handler"
	"github.com/tippinbit/tippind/internal/server/ws"
	"github.com/tippinbit/tippind/internal/username"
)

// shutdownTimeout bounds graceful HTTP shutdown on context cancellation.
const shutdownTimeout = 10 * time.Second

// services bundles the long-running components a mode starts.
type services struct {
	poller  *pricefeed.Poller
	monitor *balance.Monitor
	flows   *borrow.Manager
	hub     *ws.Hub
}

// modeOpts selects which subsystems a mode enables.
type modeOpts struct {
	borrowing      bool
	balanceMonitor bool
}

// ServeMode runs the HTTP API with the price poller. Borrowing and balance
// monitoring stay off; borrow endpoints report the feature as disabled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")
	return a.run(ctx, deps, modeOpts{})
}

// MonitorMode runs the pollers (price, wallet balance) alongside the HTTP
// API so dashboards can follow the wallet without borrowing being active.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	return a.run(ctx, deps, modeOpts{balanceMonitor: true})
}

// FullMode starts all subsystems: price polling, balance monitoring,
// borrowing flows, and the HTTP server.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.run(ctx, deps, modeOpts{borrowing: true, balanceMonitor: true})
}

func (a *App) run(ctx context.Context, deps *Dependencies, opts modeOpts) error {
	g, ctx := errgroup.WithContext(ctx)

	svcs := a.buildServices(deps, opts)
	defer svcs.flows.Close()

	g.Go(func() error {
		return svcs.poller.Run(ctx)
	})
	if svcs.monitor.Enabled() {
		g.Go(func() error {
			return svcs.monitor.Run(ctx)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svcs)
	}

	return g.Wait()
}

// buildServices constructs the pollers, the borrow manager and the WebSocket
// hub for the selected mode.
func (a *App) buildServices(deps *Dependencies, opts modeOpts) *services {
	feedClient := pricefeed.NewClient(a.cfg.PriceFeed.URL, a.logger)
	poller := pricefeed.NewPoller(feedClient, deps.PriceCache, deps.SignalBus,
		a.cfg.PriceFeed.PollInterval.Duration, a.cfg.PriceFeed.StaleAfter.Duration, a.logger)

	var reader balance.Reader
	if opts.balanceMonitor && deps.Chain != nil {
		reader = deps.Chain
	}
	monitor := balance.NewMonitor(reader, a.logger)
	monitor.SetPollInterval(a.cfg.Balance.PollInterval.Duration)

	// The manager carries zeroed contract addresses when borrowing is off,
	// so every start attempt fails fast with the feature-disabled error.
	var flowCfg borrow.Config
	var writer borrow.ChainWriter
	if opts.borrowing && deps.Chain != nil {
		flowCfg = borrow.Config{
			CollateralToken: a.cfg.Contracts.CollateralToken,
			VaultAddress:    a.cfg.Contracts.VaultAddress,
			WalletAddress:   deps.Chain.WalletAddress(),
		}
		writer = deps.Chain
	}
	flows := borrow.NewManager(flowCfg, collateral.DefaultConfig(), poller, writer,
		borrow.DefaultRetryPolicy(), deps.TipStore, deps.SignalBus, deps.Notifier, monitor, a.logger)

	return &services{
		poller:  poller,
		monitor: monitor,
		flows:   flows,
		hub:     ws.NewHub(deps.SignalBus, a.logger),
	}
}

// startHTTPServer registers the API handlers and runs the server and
// WebSocket hub under the errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	usernameSvc := username.NewService(deps.UsernameStore, deps.Notifier, a.logger)

	var collateralReader handler.CollateralReader
	if deps.Chain != nil {
		collateralReader = deps.Chain
	}

	checks := []handler.DependencyCheck{
		{Name: "redis", Pinger: deps.Redis},
	}
	if deps.Postgres != nil {
		checks = append(checks, handler.DependencyCheck{Name: "postgres", Pinger: deps.Postgres})
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(checks, a.logger),
		Price:  handler.NewPriceHandler(svcs.poller, a.logger),
		Usernames: handler.NewUsernameHandler(
			usernameSvc, a.cfg.Server.BaseURL, a.logger,
		),
		Borrow: handler.NewBorrowHandler(
			svcs.flows, usernameSvc, collateralReader,
			svcs.poller, collateral.DefaultConfig(), a.logger,
		),
		Balance: handler.NewBalanceHandler(svcs.monitor, a.logger),
		Tips:    handler.NewTipsHandler(deps.TipStore, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
	}, handlers, deps.RateLimiter, svcs.hub, a.logger)

	g.Go(func() error {
		return svcs.hub.Run(ctx)
	})

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	})
}
