package main

import (
	"context"
	"os"

	"vmledger/pkg/config"
	"vmledger/pkg/model"
	"vmledger/pkg/xetcd"
	"vmledger/pkg/xnats"
)

// PrepareForBenchmark prepare mysql, nats, etcd for benchmark with docker compose
func PrepareForBenchmark(ctx context.Context) (err error) {
	cfg := config.Shared

	// 0. Check if prepared

	filePath := "/tmp/vmledger_bm_prepared_flag"

	_, err = os.Stat(filePath)
	if err == nil || !os.IsNotExist(err) {
		// already prepared, just wait
		<-ctx.Done()
		return nil
	}

	// 1. Prepare database

	if db := model.GetMySQL(); db != nil {
		if err = model.Migrate(db); err != nil {
			logger.Errorf("bm prepare failed with err:%s", err)
			return
		}
		logger.Infof("bm mysql migrated")
	}

	// 2. Prepare nats

	logger.Infof("nats connecting %s", cfg.Nats.Url)
	nc, js, err := xnats.Connect(cfg.Nats.Url)
	if err != nil {
		logger.Errorf("bm prepare failed with err:%s", err)
		return
	}
	defer nc.Close()

	err = xnats.EnsureStream(js, cfg.Nats.Stream)
	if err != nil {
		logger.Errorf("bm prepare failed with err:%s", err)
		return
	}

	// 3. Prepare etcd

	if xetcd.Shared != nil {
		err = xetcd.Put(xetcd.KeyNatsService(), cfg.Nats.Url)
		if err != nil {
			return
		}
		err = xetcd.Put(xetcd.KeyGrpcService(), cfg.Grpc.Addr)
		if err != nil {
			return
		}
	}

	// 4. Create flag file -- set prepared

	_, err = os.Create(filePath)
	if err != nil {
		logger.Errorf("bm prepare failed with err:%s", err)
		return
	}

	logger.Infof("bm prepared")
	<-ctx.Done()
	return nil
}
