package app

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"llmarena/internal/arbiter"
	"llmarena/internal/archive"
	"llmarena/internal/battle"
	"llmarena/internal/config"
	"llmarena/internal/configstore"
	"llmarena/internal/db"
	"llmarena/internal/engine"
	"llmarena/internal/events"
	"llmarena/internal/llm"
	"llmarena/internal/rating"
	"llmarena/internal/tournament"
	"llmarena/internal/web"
)

type App struct {
	log *slog.Logger
	cfg config.Config

	store       *db.Store
	conf        *configstore.Store
	models      *llm.Registry
	ratings     *rating.Book
	live        *engine.LiveBoard
	bus         *events.Broadcaster
	driver      *engine.Driver
	recorder    engine.Recorder
	battles     *battle.Orchestrator
	tournaments *tournament.Orchestrator
	sched       *scheduler
	handler     *web.Handler

	uci   *engine.UCIProposer
	kafka *events.KafkaSink
	mqtt  *events.MQTTSink

	adminToken string
	games      sync.WaitGroup

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New builds every component from cfg. The returned App owns background
// work until Close.
func New(cfg config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create data dir")
	}

	a := &App{log: log, cfg: cfg}
	a.ctx, a.cancel = context.WithCancel(context.Background())
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	token, created, err := loadOrInitAdminToken(cfg.DataDir, cfg.AdminToken)
	if err != nil {
		return nil, err
	}
	a.adminToken = token
	if created {
		log.Info("admin_token_created", slog.String("path", adminTokenPath(cfg.DataDir)))
	}

	if a.store, err = db.Open(cfg.DBPath); err != nil {
		return nil, err
	}
	if a.conf, err = configstore.New(cfg.ConfigPath); err != nil {
		return nil, err
	}
	settings, err := a.conf.GetConfig(a.ctx)
	if err != nil {
		return nil, err
	}

	a.models = llm.NewRegistry(log, llm.Keys{
		OpenAI:    cfg.OpenAIKey,
		Google:    cfg.GoogleKey,
		Anthropic: cfg.AnthropicKey,
		DeepSeek:  cfg.DeepSeekKey,
	}, llm.RegistryOptions{})
	if cfg.UCIEnginePath != "" {
		a.uci = engine.NewUCIProposer(log, cfg.UCIEnginePath, cfg.UCIEngineArgs, "", cfg.UCIMovetimeMS)
		a.models.Register(llm.Model{
			Name:        llm.StockfishModel,
			Provider:    llm.ProviderUCI,
			ModelID:     cfg.UCIEnginePath,
			InitialElo:  2000,
			Description: "Local UCI engine",
			Active:      true,
		}, a.uci)
	}

	a.ratings = rating.NewBook(log, a.store, settings.KFactor)
	if err := a.seedRatings(a.ctx); err != nil {
		return nil, err
	}

	a.bus = events.NewBroadcaster()
	if err := a.startSinks(a.ctx); err != nil {
		return nil, err
	}

	a.live = engine.NewLiveBoard()
	a.driver = engine.NewDriver(log, a.models, a.bus, a.live, settings.EngineOptions())
	a.driver.SetArbiter(arbiter.Arbiter{WordBoundary: settings.WordBoundary})

	a.recorder, err = a.buildRecorder(a.ctx)
	if err != nil {
		return nil, err
	}

	a.battles = battle.NewOrchestrator(log, battle.Deps{
		Player:    a.driver,
		Ratings:   a.ratings,
		Recorder:  a.recorder,
		Store:     a.store,
		Publisher: a.bus,
	})
	a.tournaments = tournament.NewOrchestrator(log, tournament.Deps{
		Player:    a.driver,
		Ratings:   a.ratings,
		Recorder:  a.recorder,
		Store:     a.store,
		Publisher: a.bus,
	})
	a.applySettings(settings)
	a.conf.OnUpdate(a.applySettings)

	if a.sched, err = newScheduler(a.ctx, log, a.tournaments); err != nil {
		return nil, err
	}
	if err := a.sched.every(evictInterval, "evict", a.evict); err != nil {
		return nil, err
	}
	a.sched.start()

	a.handler = web.NewHandler(log, web.Deps{
		Store:       a.store,
		Conf:        a.conf,
		Models:      a.models,
		Ratings:     a.ratings,
		Live:        a.live,
		Games:       a,
		Battles:     a.battles,
		Tournaments: a.tournaments,
		Scheduler:   a.sched,
		Events:      a.bus,
		AdminToken:  a.adminToken,
	})
	ok = true
	return a, nil
}

// seedRatings restores stored ratings and registers every known model so
// the models table lists them before their first game.
func (a *App) seedRatings(ctx context.Context) error {
	stored, err := a.store.ListModels(ctx)
	if err != nil {
		return err
	}
	for _, row := range stored {
		a.ratings.Seed(row.Name, row.Rating)
	}
	for _, m := range a.models.Models() {
		a.ratings.Seed(m.Name, m.InitialElo)
		if err := a.store.UpsertModel(ctx, db.ModelRow{
			Name:        m.Name,
			Provider:    m.Provider,
			ModelID:     m.ModelID,
			Description: m.Description,
			InitialElo:  m.InitialElo,
			Active:      m.Active,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) startSinks(ctx context.Context) error {
	if len(a.cfg.KafkaBrokers) > 0 {
		k, err := events.NewKafkaSink(events.KafkaConfig{Brokers: a.cfg.KafkaBrokers, Topic: a.cfg.KafkaTopic}, a.log)
		if err != nil {
			return errors.Wrap(err, "kafka sink")
		}
		k.Start(ctx)
		a.bus.AddSink(k)
		a.kafka = k
	}
	if a.cfg.MQTTBroker != "" {
		id, err := a.store.InstanceID(ctx)
		if err != nil {
			return err
		}
		m, err := events.DialMQTT(a.cfg.MQTTBroker, "llmarena-"+id, a.cfg.MQTTTopicPrefix, a.log)
		if err != nil {
			return err
		}
		a.bus.AddSink(m)
		a.mqtt = m
	}
	return nil
}

func (a *App) buildRecorder(ctx context.Context) (engine.Recorder, error) {
	recs := multiRecorder{a.store}
	if a.cfg.S3Bucket == "" {
		return recs, nil
	}
	client, err := archive.NewS3Client(ctx, archive.S3Config{
		Bucket:    a.cfg.S3Bucket,
		Region:    a.cfg.S3Region,
		Endpoint:  a.cfg.S3Endpoint,
		AccessKey: a.cfg.S3AccessKey,
		SecretKey: a.cfg.S3SecretKey,
	})
	if err != nil {
		return nil, err
	}
	return append(recs, archive.NewS3Archiver(a.log, client, a.cfg.S3Bucket)), nil
}

// applySettings pushes stored tunables into the running components.
func (a *App) applySettings(c configstore.Config) {
	a.driver.SetOptions(c.EngineOptions())
	a.driver.SetArbiter(arbiter.Arbiter{WordBoundary: c.WordBoundary})
	a.battles.SetGameDelay(c.GameDelay())
	a.tournaments.SetDelays(c.BatchDelay(), c.RoundInterval())
	a.ratings.SetK(c.KFactor)
	a.log.Debug("settings_applied",
		slog.Int("max_moves", c.MaxMoves),
		slog.Float64("k_factor", c.KFactor),
		slog.Bool("word_boundary", c.WordBoundary))
}

func (a *App) evict() {
	retention := a.cfg.Retention
	battles := a.battles.Registry().Evict(retention, (*battle.Battle).FinishedAt)
	tourneys := a.tournaments.Registry().Evict(retention, (*tournament.Tournament).FinishedAt)
	live := a.live.Prune(retention)
	if len(battles)+len(tourneys)+live > 0 {
		a.log.Info("registry_evicted",
			slog.Int("battles", len(battles)),
			slog.Int("tournaments", len(tourneys)),
			slog.Int("live_games", live))
	}
}

func (a *App) Router() http.Handler {
	return a.handler.Router()
}

func (a *App) AdminToken() string {
	return a.adminToken
}

// Close stops running work, flushes the event sinks and closes the
// database. It is safe to call more than once.
func (a *App) Close() error {
	var errs *multierror.Error
	a.closeOnce.Do(func() {
		if a.sched != nil {
			errs = multierror.Append(errs, a.sched.shutdown())
		}
		if a.battles != nil {
			a.battles.StopAll()
			a.battles.Wait()
		}
		if a.tournaments != nil {
			a.tournaments.StopAll()
			a.tournaments.Wait()
		}
		a.cancel()
		a.games.Wait()
		if a.kafka != nil {
			ctx, cancel := context.WithTimeout(context.Background(), sinkFlushTimeout)
			errs = multierror.Append(errs, a.kafka.Stop(ctx))
			cancel()
		}
		if a.mqtt != nil {
			a.mqtt.Close()
		}
		if a.uci != nil {
			errs = multierror.Append(errs, a.uci.Close())
		}
		if a.store != nil {
			errs = multierror.Append(errs, a.store.Close())
		}
	})
	return errs.ErrorOrNil()
}
