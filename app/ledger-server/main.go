package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/qubic/go-se-ledger/api"
	"github.com/qubic/go-se-ledger/business/domain/kv"
	"github.com/qubic/go-se-ledger/business/domain/se"
	"github.com/qubic/go-se-ledger/business/domain/tx"
	"github.com/qubic/go-se-ledger/business/ledger"
	"github.com/qubic/go-se-ledger/business/reveal"
	"github.com/qubic/go-se-ledger/business/table"
	"github.com/qubic/go-se-ledger/external/elastic"
	"github.com/qubic/go-se-ledger/external/kafka"
	"github.com/qubic/go-se-ledger/external/trustedtime"
	"github.com/qubic/go-se-ledger/infrastructure/store/pebbledb"
	"github.com/qubic/go-se-ledger/infrastructure/store/redisdb"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kprom"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

const prefix = "QUBIC_SE_LEDGER"

func main() {
	if err := run(); err != nil {
		log.Fatalf("main: exited with error: %s", err.Error())
	}
}

func run() error {
	config := zap.NewProductionConfig()
	// this is just for sugar, to display a readable date instead of an epoch time
	config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime)

	logger, err := config.Build()
	if err != nil {
		return fmt.Errorf("creating logger: %v", err)
	}
	defer logger.Sync()
	sLogger := logger.Sugar()

	if err := godotenv.Load(); err != nil {
		sLogger.Infow("no .env file loaded", "error", err)
	}

	var cfg struct {
		Server struct {
			ListenAddr        string        `conf:"default:0.0.0.0:8000"`
			MetricsListenAddr string        `conf:"default:0.0.0.0:9999"`
			ReadTimeout       time.Duration `conf:"default:10s"`
			WriteTimeout      time.Duration `conf:"default:30s"`
			ShutdownTimeout   time.Duration `conf:"default:10s"`
		}
		Store struct {
			// pebble or redis
			Backend string `conf:"default:pebble"`
			Folder  string `conf:"default:store"`
		}
		Redis struct {
			Address       string        `conf:"default:localhost:6379"`
			Password      string        `conf:"optional,mask"`
			Db            int           `conf:"default:0"`
			UpdateTimeout time.Duration `conf:"default:5s"`
			MaxAttempts   int           `conf:"default:10"`
		}
		Ledger struct {
			// decimal or hex
			AmountEncoding   string   `conf:"default:decimal"`
			RejectDuplicates bool     `conf:"default:true"`
			RevealKeys       []string `conf:"noprint"`
		}
		Cache struct {
			SecureElementTtl time.Duration `conf:"default:10m"`
		}
		Kafka struct {
			Enabled          bool     `conf:"default:false"`
			BootstrapServers []string `conf:"default:localhost:9092"`
			TransactionTopic string   `conf:"default:qubic-se-transactions"`
		}
		Elastic struct {
			Enabled     bool     `conf:"default:false"`
			Addresses   []string `conf:"default:https://localhost:9200"`
			Username    string   `conf:"default:qubic-ingestion"`
			Password    string   `conf:"optional,mask"`
			IndexName   string   `conf:"default:qubic-se-transactions-alias"`
			Certificate string   `conf:"default:http_ca.crt"`
			MaxRetries  int      `conf:"default:15"`
		}
		Metrics struct {
			Namespace string `conf:"default:qubic_se_ledger"`
		}
		PublishTimeout time.Duration `conf:"default:5s"`
	}

	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %v", err)
			}
			fmt.Println(usage)
			return nil
		case conf.ErrVersionWanted:
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config version: %v", err)
			}
			fmt.Println(version)
			return nil
		}
		return fmt.Errorf("parsing config: %v", err)
	}

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %v", err)
	}
	log.Printf("main: Config :\n%v\n", out)

	encoding, err := ledger.ParseEncoding(cfg.Ledger.AmountEncoding)
	if err != nil {
		return errors.Wrap(err, "parsing amount encoding")
	}
	gate, err := reveal.NewGate(cfg.Ledger.RevealKeys)
	if err != nil {
		return errors.Wrap(err, "creating reveal gate")
	}

	store, closeStore, err := openStore(cfg.Store.Backend, cfg.Store.Folder, cfg.Redis.Address, cfg.Redis.Password,
		cfg.Redis.Db, cfg.Redis.UpdateTimeout, cfg.Redis.MaxAttempts)
	if err != nil {
		return err
	}
	defer closeStore()

	var publishers tx.Publishers
	if cfg.Kafka.Enabled {
		m := kprom.NewMetrics(cfg.Metrics.Namespace,
			kprom.Registerer(prometheus.DefaultRegisterer),
			kprom.Gatherer(prometheus.DefaultGatherer))
		kcl, err := kgo.NewClient(
			kgo.WithHooks(m),
			kgo.DefaultProduceTopic(cfg.Kafka.TransactionTopic),
			kgo.SeedBrokers(cfg.Kafka.BootstrapServers...),
			kgo.ProducerBatchCompression(kgo.ZstdCompression()),
		)
		if err != nil {
			return errors.Wrap(err, "creating kafka client")
		}
		defer kcl.Close()
		publishers = append(publishers, kafka.NewClient(kcl, cfg.Kafka.TransactionTopic, sLogger))
	}
	if cfg.Elastic.Enabled {
		cert, err := os.ReadFile(cfg.Elastic.Certificate)
		if err != nil {
			sLogger.Warnw("could not read elastic certificate", "error", err)
		}
		esClient, err := elasticsearch.NewClient(elasticsearch.Config{
			Addresses:     cfg.Elastic.Addresses,
			Username:      cfg.Elastic.Username,
			Password:      cfg.Elastic.Password,
			CACert:        cert,
			RetryOnStatus: []int{502, 503, 504, 429},
			MaxRetries:    cfg.Elastic.MaxRetries,
		})
		if err != nil {
			return errors.Wrap(err, "creating elastic client")
		}
		publishers = append(publishers, elastic.NewClient(esClient, cfg.Elastic.IndexName, sLogger))
	}

	var publisher tx.Publisher
	if len(publishers) > 0 {
		publisher = publishers
	}

	clock := trustedtime.SystemClock{}
	transactions := tx.NewService(store, ledger.NewBalanceLedger(encoding), gate, publisher, clock, tx.Config{
		RejectDuplicates: cfg.Ledger.RejectDuplicates,
		PublishTimeout:   cfg.PublishTimeout,
	}, sLogger, tx.NewMetrics(cfg.Metrics.Namespace))
	secureElements := se.NewService(store, clock, se.NewCache(cfg.Cache.SecureElementTtl), sLogger)
	values := kv.NewService(store)

	handler := api.NewHandler(transactions, secureElements, values, sLogger)
	server := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      api.NewRouter(handler, api.NewMetrics(cfg.Metrics.Namespace)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/health", api.Health)
	metricsServer := &http.Server{
		Addr:    cfg.Server.MetricsListenAddr,
		Handler: metricsMux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sLogger.Infow("main: Starting api server", "address", cfg.Server.ListenAddr)
		return listen(server)
	})
	g.Go(func() error {
		sLogger.Infow("main: Starting metrics server", "address", cfg.Server.MetricsListenAddr)
		return listen(metricsServer)
	})
	g.Go(func() error {
		<-gCtx.Done()
		sLogger.Info("main: Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		if metricsErr := metricsServer.Shutdown(shutdownCtx); err == nil {
			err = metricsErr
		}
		return errors.Wrap(err, "shutting down servers")
	})

	sLogger.Info("main: Service started.")
	return g.Wait()
}

func listen(server *http.Server) error {
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return errors.Wrapf(err, "serving on [%s]", server.Addr)
}

// openStore returns the configured ledger backend and a function closing it.
func openStore(backend, folder, redisAddr, redisPassword string, redisDb int, redisTimeout time.Duration, redisAttempts int) (table.Ledger, func(), error) {
	switch backend {
	case "pebble":
		store, err := pebbledb.NewLedgerStore(folder)
		if err != nil {
			return nil, nil, errors.Wrap(err, "creating pebble store")
		}
		return store, func() { _ = store.Close() }, nil
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
		defer cancel()
		rdb, err := redisdb.Connect(ctx, redisAddr, redisPassword, redisDb)
		if err != nil {
			return nil, nil, errors.Wrap(err, "connecting to redis")
		}
		store := redisdb.NewLedgerStore(rdb, redisdb.WithTimeout(redisTimeout), redisdb.WithMaxAttempts(redisAttempts))
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, errors.Errorf("unknown store backend [%s]", backend)
	}
}
