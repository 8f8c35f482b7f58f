package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/microsandbox/microsandbox/internal/config"
	"github.com/microsandbox/microsandbox/internal/lifecycle"
	"github.com/microsandbox/microsandbox/internal/metrics"
	"github.com/microsandbox/microsandbox/internal/nsconfig"
	"github.com/microsandbox/microsandbox/internal/portalfwd"
	"github.com/microsandbox/microsandbox/internal/rpcapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	log.Printf("microsandbox: home=%s port-range=[%d,%d]", cfg.Home, cfg.PortMin, cfg.PortMax)

	cfgStore := nsconfig.New(cfg.Home)

	lm := lifecycle.New(cfgStore, lifecycle.Options{
		PortMin:               cfg.PortMin,
		PortMax:               cfg.PortMax,
		PortalGuestPort:       cfg.PortalGuestPort,
		VMMBin:                cfg.FirecrackerBin,
		DefaultMemoryMiB:      cfg.DefaultSandboxMemoryMB,
		DefaultCPUs:           cfg.DefaultSandboxCPUs,
		ReadinessTimeoutReuse: time.Duration(cfg.ReadinessTimeoutReuseSec) * time.Second,
		ReadinessTimeoutPull:  time.Duration(cfg.ReadinessTimeoutPullSec) * time.Second,
	})

	forwarder := portalfwd.New(nil)

	server := rpcapi.New(lm, forwarder)

	stopSampler := make(chan struct{})
	go samplePoolMetrics(lm, stopSampler)
	defer close(stopSampler)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("microsandbox: starting RPC dispatcher on %s", addr)

	go func() {
		if err := server.Echo().Start(addr); err != nil {
			log.Printf("microsandbox: server error: %v", err)
		}
	}()

	<-quit
	log.Println("microsandbox: shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("microsandbox: error closing server: %v", err)
	}
}

// samplePoolMetrics periodically reports the portal port pool's free/
// assigned counts into the Prometheus gauges until stop is closed.
func samplePoolMetrics(lm *lifecycle.Manager, stop <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			metrics.ReportPool(lm.PortPool())
		case <-stop:
			return
		}
	}
}
