// Package main runs the patron engine: transfer reconciliation, auto-curation,
// the patron event consumer and the HTTP API in one process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"steem-patron-bot/internal/api"
	"steem-patron-bot/internal/config"
	"steem-patron-bot/internal/curation"
	"steem-patron-bot/internal/domain"
	"steem-patron-bot/internal/events"
	"steem-patron-bot/internal/logging"
	"steem-patron-bot/internal/notify"
	"steem-patron-bot/internal/reconcile"
	"steem-patron-bot/internal/registration"
	"steem-patron-bot/internal/scheduler"
	"steem-patron-bot/internal/steem"
	"steem-patron-bot/internal/storage"
	chstore "steem-patron-bot/internal/storage/clickhouse"
	"steem-patron-bot/internal/storage/memory"
	"steem-patron-bot/internal/storage/migrations"
	pgstore "steem-patron-bot/internal/storage/postgres"
	redisstore "steem-patron-bot/internal/storage/redis"
)

// stores holds the storage implementations chosen from configuration.
type stores struct {
	claims   storage.ClaimStore
	patrons  storage.PatronStore
	memos    storage.MemoSet
	outcomes storage.OutcomeStore
	redis    *goredis.Client
	checks   map[string]api.ReadyCheck
	closers  []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func main() {
	migrate := flag.Bool("migrate", true, "Apply database migrations on startup")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()

		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(cfg.ShutdownTimeout + 5*time.Second):
			logger.Error().Msg("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, *migrate, logger)
	close(done)
	if err != nil {
		logger.Fatal().Err(err).Msg("engine stopped with error")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, migrate bool, logger zerolog.Logger) error {
	activeKey, err := steem.ParseWIF(cfg.Registration.ActiveKey)
	if err != nil {
		return fmt.Errorf("REGISTRATION_ACTIVE_KEY: %w", err)
	}
	postingKey, err := steem.ParseWIF(cfg.Curation.PostingKey)
	if err != nil {
		return fmt.Errorf("CURATION_POSTING_KEY: %w", err)
	}
	amount, err := domain.ParseAsset(cfg.Registration.Amount)
	if err != nil {
		return fmt.Errorf("REGISTRATION_AMOUNT: %w", err)
	}
	chainID, err := steem.ParseChainID(cfg.Steem.ChainID)
	if err != nil {
		return fmt.Errorf("STEEM_CHAIN_ID: %w", err)
	}

	// Reads retry; broadcasts go out once.
	reads, err := steem.DialAll(ctx, cfg.Steem.Nodes,
		steem.WithTimeout(cfg.Steem.Timeout), steem.WithMaxRetries(cfg.Steem.MaxRetries))
	if err != nil {
		return err
	}
	defer reads.Close()
	writes, err := steem.DialAll(ctx, cfg.Steem.Nodes,
		steem.WithTimeout(cfg.Steem.Timeout), steem.WithMaxRetries(0))
	if err != nil {
		return err
	}
	defer writes.Close()

	client := steem.NewClient(reads)
	broadcaster := steem.NewBroadcaster(client, writes, steem.BroadcasterOptions{
		ChainID: chainID,
		Logger:  logging.Component(logger, "broadcaster"),
	})

	st, err := openStores(ctx, cfg, migrate, logger)
	if err != nil {
		return err
	}
	defer st.close()

	var notifier notify.Notifier = notify.NewLogSink(logging.Component(logger, "notify"))
	var members notify.MembershipGranter = notify.NewLogSink(logging.Component(logger, "members"))
	if cfg.Discord.Token != "" {
		discord, err := notify.NewDiscord(notify.DiscordOptions{
			BaseURL: cfg.Discord.BaseURL,
			Token:   cfg.Discord.Token,
			GuildID: cfg.Discord.GuildID,
			Logger:  logging.Component(logger, "discord"),
		})
		if err != nil {
			return err
		}
		notifier, members = discord, discord
	}

	registrar := registration.NewService(registration.Options{
		Claims:              st.claims,
		Ledger:              client,
		RegistrationAccount: cfg.Registration.Account,
		Amount:              amount,
		CheckRetries:        uint64(cfg.Registration.UsernameCheckRetries),
		CheckBackoff:        cfg.Registration.UsernameCheckBackoff,
		CacheTTL:            cfg.Registration.UsernameCacheTTL,
		Logger:              logging.Component(logger, "registration"),
	})

	reconciler := reconcile.NewReconciler(reconcile.Options{
		Ledger:        client,
		Writer:        broadcaster,
		Claims:        st.claims,
		Memos:         st.memos,
		Notifier:      notifier,
		Members:       members,
		Account:       cfg.Registration.Account,
		ActiveKey:     activeKey,
		RoleID:        cfg.Discord.VerifiedRoleID,
		PendingWindow: cfg.Reconcile.PendingWindow,
		ScanWindow:    cfg.Reconcile.ScanWindow,
		ClaimTTL:      cfg.Reconcile.ClaimTTL,
		DedupTTL:      cfg.Reconcile.DedupTTL,
		Logger:        logging.Component(logger, "reconcile"),
	})

	curator := curation.NewCurator(curation.Options{
		Ledger:            client,
		Writer:            broadcaster,
		Claims:            st.claims,
		Patrons:           st.patrons,
		Notifier:          notifier,
		Account:           cfg.Curation.Account,
		PostingKey:        postingKey,
		GatingAccount:     cfg.Curation.GatingAccount,
		ChannelID:         cfg.Curation.ChannelID,
		Weight:            cfg.Curation.Weight,
		MinVotingPower:    cfg.Curation.MinVotingPower,
		MinAge:            cfg.Curation.MinAge,
		MaxAge:            cfg.Curation.MaxAge,
		RecentWindow:      cfg.Curation.RecentWindow,
		PostsPerCandidate: cfg.Curation.PostsPerCandidate,
		Logger:            logging.Component(logger, "curation"),
	})

	loops, err := scheduler.NewRuntime(scheduler.Options{
		Jobs: []scheduler.Job{
			{Loop: domain.LoopReconcile, Interval: cfg.Reconcile.Interval, Cycle: reconciler},
			{Loop: domain.LoopCuration, Interval: cfg.Curation.Interval, Cycle: curator},
		},
		Outcomes:    st.outcomes,
		StopTimeout: cfg.ShutdownTimeout,
		Logger:      logging.Component(logger, "scheduler"),
	})
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	if st.redis != nil {
		consumer := events.NewConsumer(events.ConsumerOptions{
			Client:   st.redis,
			Patrons:  st.patrons,
			Stream:   cfg.Redis.EventsStream,
			Group:    cfg.Redis.ConsumerGroup,
			Consumer: cfg.Redis.ConsumerName,
			Logger:   logging.Component(logger, "events"),
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("patron event consumer stopped")
			}
		}()
	}

	server := &http.Server{
		Addr: cfg.API.Addr,
		Handler: api.NewRouter(api.Options{
			Registrar: registrar,
			Voter:     curator,
			Patrons:   st.patrons,
			Outcomes:  st.outcomes,
			Token:     cfg.API.Token,
			Checks:    st.checks,
			Logger:    logging.Component(logger, "api"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.API.Addr).Msg("http api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	loops.Start()
	logger.Info().
		Str("registration_account", cfg.Registration.Account).
		Str("curation_account", cfg.Curation.Account).
		Str("refund_key", activeKey.PublicKey()).
		Str("posting_key", postingKey.PublicKey()).
		Msg("engine started")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
		logger.Error().Err(runErr).Msg("http api failed")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http api shutdown")
	}
	if err := loops.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("scheduler shutdown")
	}
	wg.Wait()
	return runErr
}

func openStores(ctx context.Context, cfg *config.Config, migrate bool, logger zerolog.Logger) (*stores, error) {
	st := &stores{checks: map[string]api.ReadyCheck{}}

	if cfg.Postgres.DSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, pool.Close)
		if migrate {
			applied, err := migrations.RunPostgresMigrations(ctx, pool)
			if err != nil {
				st.close()
				return nil, err
			}
			logger.Info().Strs("applied", applied).Msg("postgres migrations")
		}
		st.claims = pgstore.NewClaimStore(pool)
		st.patrons = pgstore.NewPatronStore(pool)
		st.checks["postgres"] = pool.Ready
	} else {
		logger.Warn().Msg("POSTGRES_DSN not set, claims and patrons are kept in memory")
		st.claims = memory.NewClaimStore()
		st.patrons = memory.NewPatronStore()
	}

	if cfg.ClickHouse.DSN != "" {
		var conn *chstore.Conn
		var err error
		if migrate {
			conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN)
		} else {
			conn, err = chstore.NewConn(ctx, cfg.ClickHouse.DSN)
		}
		if err != nil {
			st.close()
			return nil, err
		}
		st.closers = append(st.closers, func() { _ = conn.Close() })
		st.outcomes = chstore.NewOutcomeStore(conn)
		st.checks["clickhouse"] = conn.Ready
	} else {
		st.outcomes = memory.NewOutcomeStore()
	}

	if cfg.Redis.Addr != "" {
		rdb, err := redisstore.NewClient(ctx, redisstore.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			st.close()
			return nil, err
		}
		st.closers = append(st.closers, func() { _ = rdb.Close() })
		st.redis = rdb
		st.memos = redisstore.NewMemoSet(rdb, "")
		st.checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	} else {
		st.memos = memory.NewMemoSet(10 * time.Minute)
	}

	return st, nil
}
