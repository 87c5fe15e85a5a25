package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"

	"quiz-live-service/internal/app"
	"quiz-live-service/internal/config"
	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/infra/memory"
	"quiz-live-service/internal/infra/postgres"
	redisstore "quiz-live-service/internal/infra/redis"
	"quiz-live-service/internal/infra/remote"
	"quiz-live-service/internal/metrics"
	"quiz-live-service/internal/notify"
	"quiz-live-service/internal/room"
	transport "quiz-live-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	m := metrics.New()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 6*time.Hour)

	var pool *pgxpool.Pool
	var archiveDB *bun.DB
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		archiveDB = postgres.OpenDB(cfg.Postgres.URL)
		defer archiveDB.Close()
	}

	var loader memory.QuizLoader
	switch {
	case cfg.Quiz.ServiceURL != "":
		loader = remote.NewQuizLoader(cfg.Quiz.ServiceURL, 5*time.Second)
	case pool != nil:
		loader = postgres.NewQuizLoader(pool)
	default:
		static, err := memory.NewStaticQuizLoader(sampleQuizzes())
		if err != nil {
			return err
		}
		loader = static
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL, cfg.Redis.Prefix)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var store app.SessionRepository
	if redisClient != nil {
		store = redisstore.NewSessionStore(redisClient, redisTTL, redisstore.WithPrefix(cfg.Redis.Prefix))
	} else {
		store = memory.NewSessionStore()
	}

	var archive app.SessionArchive
	if archiveDB != nil {
		archive = postgres.NewSessionArchive(archiveDB)
	}

	notifier, closeSinks, err := newNotifier(cfg, m)
	if err != nil {
		return err
	}
	defer closeSinks()
	defer notifier.Stop()

	rooms := room.NewBroadcaster(room.WithDropHook(func(code string, ep room.Endpoint, tag room.Tag) {
		log.Debug().Str("code", code).Str("endpoint_id", ep.ID()).Str("tag", string(tag)).Msg("endpoint dropped")
	}))

	service := app.NewGameService(app.Config{
		Sessions: store,
		Quizzes:  quizRepo,
		Rooms:    rooms,
		Notifier: notifier,
		Archive:  archive,
		Metrics:  m,
		Timing: app.Timing{
			Grace:       config.TTLDuration(cfg.Game.GracePeriod, app.DefaultGracePeriod),
			RevealDelay: config.TTLDuration(cfg.Game.RevealDelay, app.DefaultRevealDelay),
			EarlyReveal: cfg.Game.EarlyReveal,
		},
	})

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(service, transport.NewWSHandler(service, m), m),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", finalPort).Bool("redis", redisClient != nil).Bool("postgres", pool != nil).Msg("starting live quiz service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		if serr := service.Shutdown(shutdownCtx); serr != nil {
			log.Error().Err(serr).Msg("stop session progressions")
		}
		return err
	})
	return g.Wait()
}

// newNotifier builds the event notifier. The returned func releases sink connections
// and must run after the notifier stopped.
func newNotifier(cfg config.Config, m *metrics.Metrics) (*notify.Notifier, func(), error) {
	var sinks []notify.Sink
	closeSinks := func() {}
	if cfg.Notify.AnalyticsURL != "" || cfg.Notify.UserServiceURL != "" {
		sinks = append(sinks, notify.NewHTTPSink(cfg.Notify.AnalyticsURL, cfg.Notify.UserServiceURL, nil))
	}
	if cfg.Notify.NATSURL != "" {
		nc, err := notify.ConnectNATS(cfg.Notify.NATSURL, "quiz-live")
		if err != nil {
			return nil, nil, err
		}
		closeSinks = func() {
			if err := nc.Drain(); err != nil {
				log.Warn().Err(err).Msg("drain nats connection")
			}
		}
		sinks = append(sinks, notify.NewNATSSink(nc, cfg.Notify.NATSSubject))
	}
	return notify.New(sinks,
		notify.WithPoolSize(cfg.Notify.PoolSize),
		notify.WithTimeout(config.TTLDuration(cfg.Notify.Timeout, 10*time.Second)),
		notify.WithDropHook(func(e notify.Event) {
			m.EventDropped()
		}),
	), closeSinks, nil
}

// sampleQuizzes serves a demo quiz when neither the quiz service nor Postgres is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm-up",
			Questions: []domain.Question{
				{
					Kind:             domain.KindSingleChoice,
					Title:            "What is 2 + 2?",
					Options:          []string{"3", "4", "5"},
					CorrectAnswer:    domain.SingleAnswer(1),
					TimeLimitSeconds: 20,
					BasePoints:       1000,
				},
				{
					Kind:             domain.KindMultipleChoice,
					Title:            "Which of these are prime?",
					Options:          []string{"2", "4", "5", "9"},
					CorrectAnswer:    domain.MultiAnswer(0, 2),
					TimeLimitSeconds: 30,
					BasePoints:       1000,
				},
				{
					Kind:          domain.KindTrueFalse,
					Title:         "Go has generics.",
					CorrectAnswer: domain.SingleAnswer(0),
				},
			},
		},
	}
}
