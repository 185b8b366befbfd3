// Command cecbridge runs the HDMI-CEC-to-TCP bridge: it drives either a
// native libcec adapter or a TCP-tunnel adapter, serves the decoded bus
// over a line-oriented TCP fan-out server, and optionally exposes a
// read-only HTTP status API and an MQTT event bridge.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/konikvranik/cecbridge/internal/adapter"
	"github.com/konikvranik/cecbridge/internal/adapter/native"
	"github.com/konikvranik/cecbridge/internal/adapter/tunnel"
	"github.com/konikvranik/cecbridge/internal/config"
	"github.com/konikvranik/cecbridge/internal/frame"
	"github.com/konikvranik/cecbridge/internal/hdmi"
	"github.com/konikvranik/cecbridge/internal/mqttbridge"
	"github.com/konikvranik/cecbridge/internal/statusapi"
	"github.com/konikvranik/cecbridge/internal/tcpserver"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := log.New(os.Stderr, "[cecbridge] ", log.LstdFlags)

	adp, err := buildAdapter(cfg)
	if err != nil {
		logger.Fatalf("building adapter: %v", err)
	}

	var bridge *mqttbridge.Bridge

	srvHolder := &serverHolder{}
	network := hdmi.New(adp, cfg.ScanInterval, cfg.UpdatePeriod, hdmi.Sinks{
		OnCommand: func(f frame.Frame) {
			srvHolder.broadcast(f)
			if bridge != nil {
				bridge.PublishFrame(f)
			}
		},
		OnDeviceAdded: func(addr frame.LogicalAddress) {
			logger.Printf("device %d appeared", addr)
			if bridge != nil {
				bridge.PublishDeviceState(addr)
			}
		},
		OnDeviceRemoved: func(addr frame.LogicalAddress) {
			logger.Printf("device %d disappeared", addr)
		},
		OnInitialized: func() {
			logger.Printf("adapter initialized, logical address %s", adp.LogicalAddress())
		},
	})

	server := tcpserver.New(network)
	srvHolder.set(server)

	var statusSrv *statusapi.Server
	if cfg.StatusAddr != "" {
		statusSrv = statusapi.New(network, cfg.StatusAddr)
	}

	if cfg.MQTT.Broker != "" {
		bridge = mqttbridge.New(network)
		bridge.Start(cfg.MQTT.Broker, cfg.MQTT.User, cfg.MQTT.Pass, cfg.MQTT.Prefix)
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		network.Watch(gctx)
		return nil
	})

	group.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Printf("TCP server listening on %s", addr)
		return server.Serve(gctx, addr)
	})

	if statusSrv != nil {
		group.Go(func() error {
			logger.Printf("status API listening on %s", cfg.StatusAddr)
			return statusSrv.ListenAndServe()
		})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	group.Go(func() error {
		select {
		case <-sigCh:
			logger.Println("shutting down")
			cancel()
		case <-gctx.Done():
		}

		if bridge != nil {
			bridge.Stop()
		}
		server.Shutdown()
		if statusSrv != nil {
			statusSrv.Shutdown()
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Printf("component exited: %v", err)
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := network.Shutdown(shutdownCtx); err != nil {
		logger.Printf("network shutdown: %v", err)
	}
}

// serverHolder lets the network's OnCommand sink reach the TCP server
// even though the server is constructed after the sink closure.
type serverHolder struct {
	srv *tcpserver.Server
}

func (h *serverHolder) set(s *tcpserver.Server) { h.srv = s }
func (h *serverHolder) broadcast(f frame.Frame) {
	if h.srv != nil {
		h.srv.Broadcast(f)
	}
}

func buildAdapter(cfg config.Config) (adapter.Adapter, error) {
	switch cfg.Mode {
	case config.ModeTunnel:
		return tunnel.New(cfg.Host), nil
	case config.ModeNative:
		return native.New("cecbridge", cfg.Interface), nil
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}
