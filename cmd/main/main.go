package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"vmledger/pkg/api"
	"vmledger/pkg/cache"
	"vmledger/pkg/config"
	"vmledger/pkg/info"
	"vmledger/pkg/ingress"
	"vmledger/pkg/ledger"
	"vmledger/pkg/model"
	"vmledger/pkg/vm"
	"vmledger/pkg/xetcd"
	"vmledger/pkg/xlog"
	"vmledger/pkg/xnats"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
)

var logger = xlog.GetLogger()

var (
	fApp     string
	fLogDir  string
	fLogFile string
	fVersion bool
)

var (
	apps = map[string]bool{"worker": true, "writer": true, "ingress": true, "api": true, "bm": true, "fm": true}
)

func init() {
	pflag.StringVar(&fApp, "app", "", "app to run: worker, writer, ingress, api, bm, fm")
	pflag.StringVar(&fLogDir, "logdir", "", "log directory, default <data_dir>/logs")
	pflag.StringVar(&fLogFile, "logfile", "", "log file name, default <app>.log")
	pflag.BoolVar(&fVersion, "version", false, "print the version and exit")
}

func main() {
	var err error
	pflag.Parse()

	if fVersion {
		fmt.Println(info.Describe())
		return
	}

	if !apps[fApp] {
		validApps := make([]string, 0, len(apps))
		for k := range apps {
			validApps = append(validApps, k)
		}
		sort.Strings(validApps)
		panic("invalid app, only (" + strings.Join(validApps, ", ") + ") avaliable")
	}

	// Initialize the Shared config
	config.EasyInit()

	// Initialize the logger
	if fLogDir == "" {
		fLogDir = filepath.Join(config.Shared.DataDir, "logs")
	}
	if fLogFile == "" {
		fLogFile = fApp + ".log"
	}
	logPath := filepath.Join(fLogDir, fLogFile)
	xlog.Init(fApp, logPath, nil)
	defer xlog.Sync()
	logger.Info(fApp + " started, " + info.Describe())
	logger.Infof("xlog in %s", logPath)

	// Handle signals
	go handleSignals()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize the etcd instance
	if config.Shared.Etcd.Main.Enable {
		err = xetcd.InitShared([]string{config.Shared.Etcd.Main.Url})
		if err != nil {
			logger.Errorf("xetcd.InitShared failed with err:%s", err)
			panic(err)
		}
	}

	// Initialize the database instances(mysql, redis)
	// fatal if failed
	model.DBInit()

	// Start the app
	switch fApp {
	case "worker":
		err = startWorker(ctx)
	case "writer":
		err = startWriter(ctx)
	case "ingress":
		err = startIngress(ctx)
	case "api":
		err = startApi(ctx)
	case "bm":
		err = PrepareForBenchmark(ctx)
	case "fm":
		err = startFiledbMonitor(ctx)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(err)
		panic(err)
	}
	logger.Info(fApp + " stopped")
}

// handleSignals handles linux signals
//
//	Function 1: Change log level via SIGUSR1 signal
//		docker exec <container_id> sh -c 'export XLOG_LVL=TRACE && kill -SIGUSR1 1'
//
// The environment of a running process does not change, so XLOG_LVL is only
// the fallback. A level written to <data_dir>/xlog_lvl wins.
func handleSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1)

	for range sigChan {
		level := os.Getenv("XLOG_LVL")
		if data, err := os.ReadFile(filepath.Join(config.Shared.DataDir, "xlog_lvl")); err == nil {
			level = strings.TrimSpace(string(data))
		}
		if level == "" {
			continue
		}
		xlog.GetLogger().SetLevel(level)
	}
}

func filedbPath(name string) string {
	return filepath.Join(config.Shared.DataDir, "filedb", name+".log")
}

func newWorker() (w *vm.Worker, err error) {
	cfg := config.Shared

	w, err = vm.New("vm", filedbPath("vm"), ledger.NewEngine(cfg.Sale.EnforceWindows))
	if err != nil {
		return
	}
	w.CreditDecimals = cfg.Sale.CreditDecimals
	w.AllowAirdrop = cfg.IsDebug
	w.Stream = cfg.Nats.Stream
	w.GrpcAddr = cfg.Grpc.Addr

	if cfg.MySQL.Main.Enabled {
		w.DB = model.GetMySQLSlience()
	}
	if rds := model.GetRedis(); rds != nil {
		w.Cache = cache.New(rds, time.Duration(cfg.Redis.Main.TTL)*time.Second)
	}
	return
}

// natsUrl prefers the address registered in etcd
func natsUrl() string {
	if xetcd.Shared != nil {
		if v, err := xetcd.Get(xetcd.KeyNatsService()); err == nil {
			return v
		}
	}
	return config.Shared.Nats.Url
}

// startWorker starts the worker app
//
//	Function 1: Consume the VM stream and execute operations one by one
//	Function 2: Journal to filedb and copy the journal into mysql
//	Function 3: Serve the grpc query service
func startWorker(ctx context.Context) (err error) {
	w, err := newWorker()
	if err != nil {
		return
	}
	defer w.Close()

	url := natsUrl()
	nc, js, err := xnats.Connect(url)
	if err != nil {
		return
	}
	defer nc.Close()
	if err = xnats.EnsureStream(js, w.Stream); err != nil {
		return
	}
	w.Nats = js
	logger.Infof("worker nats connected %s, stream:%s", url, w.Stream)

	if xetcd.Shared != nil {
		if err = xetcd.Register(ctx, fApp, w.GrpcAddr, 10); err != nil {
			return
		}
	}

	return w.Run(ctx)
}

// startWriter starts the writer app
//
//	Function 1: Copy the journal into mysql without executing anything,
//		e.g. to catch mysql up before a worker starts
func startWriter(ctx context.Context) (err error) {
	if !config.Shared.MySQL.Main.Enabled {
		return errors.New("writer needs mysql.main.enabled")
	}
	w, err := newWorker()
	if err != nil {
		return
	}
	defer w.Close()

	w.StartWriter(ctx)
	return ctx.Err()
}

// startApi starts the api app
//
//	Function 1: Publish operations received over HTTP to Nats
//	Function 2: Serve machines, tickets and receipts from redis
func startApi(ctx context.Context) (err error) {
	cfg := config.Shared

	rds := model.GetRedis()
	if rds == nil {
		return errors.New("api needs redis.main.enabled")
	}
	keys, err := api.ParseKeys(cfg.Auth.Keys)
	if err != nil {
		return
	}

	if !cfg.IsDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger), gin.Recovery())
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": info.Version,
		})
	})

	ing := ingress.New(cfg.Nats.Stream, natsUrl())
	api.NewHandler(ing, cache.New(rds, time.Duration(cfg.Redis.Main.TTL)*time.Second), keys).RegisterRoutes(router)

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	logger.Infof("api listening on %s", cfg.HTTP.Addr)
	err = srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return
}
