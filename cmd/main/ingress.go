package main

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"vmledger/pkg/config"
	"vmledger/pkg/ingress"
	"vmledger/pkg/ledger"
	"vmledger/pkg/xnats"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
)

var (
	fBenchOps  int64
	fBenchConc int
)

func init() {
	pflag.Int64Var(&fBenchOps, "bench-ops", 1_000_000, "ingress: buy_spl requests to send")
	pflag.IntVar(&fBenchConc, "bench-conc", 16, "ingress: concurrent publishers")
}

// startIngress starts the ingress app
//
//	Function 1: Seed a funded machine, needs a worker running with is_debug
//	Function 2: Send buy_spl requests to Nats and report the rate
func startIngress(ctx context.Context) (err error) {
	cfg := config.Shared
	ing := ingress.New(cfg.Nats.Stream, natsUrl())

	for i := 0; i < 100; i++ {
		_, err = ing.GetNats()
		if err == nil {
			break
		}
		logger.Errorf("ing.GetNats failed with err:%s", err)
		time.Sleep(100 * time.Millisecond)
	}
	if err != nil {
		return
	}

	authority := ledger.DeriveAddress([]byte("bench"), []byte("authority"))
	asset := ledger.DeriveAddress([]byte("bench"), []byte("asset"))
	buyer := ledger.DeriveAddress([]byte("bench"), []byte("buyer"))
	machine := ledger.DeriveMachineID(authority, asset)
	stock := uint64(fBenchOps) * 10

	// 1 base unit per supply unit
	unit := decimal.New(1, -cfg.Sale.CreditDecimals)

	seed := []xnats.OpReq{
		airdropReq(authority, asset, stock),
		airdropReq(buyer, ledger.Credits, stock*10),
	}
	create := ingress.NewReq(xnats.OpCreateMachine, authority)
	create.Asset = asset
	create.Create = &xnats.CreateParams{PPA: unit.Mul(decimal.NewFromInt(10)), PPT: unit}
	fund := ingress.NewReq(xnats.OpFundMachine, authority)
	fund.Machine = machine
	fund.Asset = asset
	fund.Amount = stock
	seed = append(seed, create, fund)

	for _, req := range seed {
		if _, err = ing.Send(ctx, req); err != nil {
			return
		}
	}
	logger.Infof("ingress seeded machine %s with stock:%d", machine.Short(), stock)

	ch := make(chan xnats.OpReq, 1024)
	var sent, failed atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < fBenchConc; i++ {
		wg.Add(1)
		go func(j int) {
			defer wg.Done()
			for req := range ch {
				if _, err := ing.Send(ctx, req); err != nil {
					failed.Add(1)
					continue
				}
				sent.Add(1)
			}
			logger.Infof("comsumer:%d done", j)
		}(i)
	}

	start := time.Now()
	for i := int64(0); i < fBenchOps && ctx.Err() == nil; i++ {
		req := ingress.NewReq(xnats.OpBuySpl, buyer)
		req.Machine = machine
		req.Authority = authority
		req.Amount = uint64(1 + rand.Int63n(10))
		ch <- req
	}
	close(ch)
	wg.Wait()

	// Benchmark result

	elapsed := time.Since(start)
	rate := int64(0)
	if int64(elapsed.Seconds()) > 0 {
		rate = sent.Load() / int64(elapsed.Seconds())
	}
	fmt.Printf(
		"Benchmark: Ingress sent %d requests (%d failed) to NATS in %s at %s with rate %d/sec\n",
		sent.Load(), failed.Load(), elapsed, time.Now().Format(time.RFC3339), rate,
	)
	return ctx.Err()
}

func airdropReq(to, asset ledger.Address, amount uint64) xnats.OpReq {
	req := ingress.NewReq(xnats.OpAirdrop, to)
	req.Asset = asset
	req.Amount = amount
	return req
}
