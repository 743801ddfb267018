// Package xetcd keeps service addresses in etcd: where nats and the vm
// grpc service live, and which instances are up.
package xetcd

import (
	"context"
	"errors"
	"time"

	"vmledger/pkg/info"
	"vmledger/pkg/xlog"

	clientv3 "go.etcd.io/etcd/client/v3"
)

type Worker struct {
	Cli *clientv3.Client
}

var Shared *Worker
var logger = xlog.GetLogger()

var ErrNotFound = errors.New("xetcd: key not found")

func New(urls []string) (w *Worker, err error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   urls,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return
	}

	w = &Worker{
		Cli: cli,
	}
	return
}

// InitShared connects and checks the first endpoint answers.
func InitShared(urls []string) (err error) {
	w, err := New(urls)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err = w.Cli.Status(ctx, urls[0]); err != nil {
		w.Cli.Close()
		return
	}

	Shared = w
	return
}

func SharedCli() *clientv3.Client {
	return Shared.Cli
}

func Get(k string) (v string, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	defer func() {
		if err != nil {
			logger.Errorf("xetcd Get k:%s failed with err:%s", k, err)
		} else {
			logger.Debugf("xetcd Get k:%s, v:%s", k, v)
		}
		cancel()
	}()

	r, err := SharedCli().Get(ctx, k)
	if err != nil {
		return
	}
	if len(r.Kvs) == 0 {
		err = ErrNotFound
		return
	}

	v = string(r.Kvs[0].Value)
	return
}

func Put(k string, v string) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	defer func() {
		if err != nil {
			logger.Errorf("xetcd Put k:%s, v:%s failed with err:%s", k, v, err)
		} else {
			logger.Debugf("xetcd Put k:%s, v:%s", k, v)
		}
		cancel()
	}()

	_, err = SharedCli().Put(ctx, k, v)
	return
}

// Register puts this instance under KeyInstance(app) with a lease kept
// alive until ctx is done, so the key disappears with the process.
func Register(ctx context.Context, app, v string, ttl int64) (err error) {
	k := KeyInstance(app)
	defer func() {
		if err != nil {
			logger.Errorf("xetcd Register k:%s failed with err:%s", k, err)
		} else {
			logger.Infof("xetcd Register k:%s, v:%s, ttl:%ds", k, v, ttl)
		}
	}()

	cli := SharedCli()
	lease, err := cli.Grant(ctx, ttl)
	if err != nil {
		return
	}
	_, err = cli.Put(ctx, k, v, clientv3.WithLease(lease.ID))
	if err != nil {
		return
	}

	ch, err := cli.KeepAlive(ctx, lease.ID)
	if err != nil {
		return
	}
	go func() {
		for range ch {
		}
		logger.Infof("xetcd Register k:%s keepalive stopped", k)
	}()
	return
}

func KeyGrpcService() string {
	return "vm_grpc_service"
}

func KeyNatsService() string {
	return "nats_vm"
}

func KeyInstance(app string) string {
	return "vm_instance/" + app + "/" + info.InstanceID
}
