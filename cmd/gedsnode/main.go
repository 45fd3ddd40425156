// Command gedsnode runs a single GEDS node: the metadata service, the
// TCP data plane, and the admin HTTP surface, all collocated in one
// process. Grounded on the teacher's cmd/aisnodeprofile/main.go: a thin
// flag-parsing main that delegates everything else to a Run function,
// profiling flags included.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"time"

	"github.com/geds-project/geds/admin"
	"github.com/geds-project/geds/config"
	"github.com/geds-project/geds/internal/glog"
	"github.com/geds-project/geds/internal/hk"
	"github.com/geds-project/geds/mds"
	"github.com/geds-project/geds/mds/kvs"
	"github.com/geds-project/geds/mds/registry"
	"github.com/geds-project/geds/node"
	"github.com/geds-project/geds/stats"
	"github.com/geds-project/geds/transport"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	configFile = flag.String("config", "", "path to a config.json; if empty, defaults are used")
	nodeID     = flag.String("id", "", "node ID (required)")
	cpuProfile = flag.String("cpuprofile", "", "write cpu profile to `file`")
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()

	if *nodeID == "" {
		fmt.Fprintln(os.Stderr, "gedsnode: -id is required")
		return 1
	}

	if s := *cpuProfile; s != "" {
		f, err := os.Create(s)
		if err != nil {
			glog.Fatalf("couldn't create cpu profile: %v", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			glog.Fatalf("couldn't start cpu profile: %v", err)
		}
		defer pprof.StopCPUProfile()
	}

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			glog.Fatalf("loading config: %v", err)
		}
		cfg = loaded
	}

	if err := serve(cfg, *nodeID); err != nil {
		glog.Errorf("gedsnode exiting: %v", err)
		return 1
	}
	return 0
}

func serve(cfg config.Config, id string) error {
	dataAddr := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.Port)
	ln, err := net.Listen("tcp", dataAddr)
	if err != nil {
		return fmt.Errorf("binding data plane listener: %w", err)
	}
	defer ln.Close()

	backend, err := openMetadataBackend(cfg)
	if err != nil {
		return fmt.Errorf("opening metadata store: %w", err)
	}

	if closer, ok := backend.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	svc := mds.NewService(backend)
	core := stats.NewCore("geds")

	// Dial is left unset: this single-process deployment has no other
	// nodes to reach. resolveAndWrap already handles a nil peer client by
	// returning FailedPrecondition instead of attempting to dial.
	n, err := node.New(node.Config{
		ID:      id,
		Addr:    ln.Addr().String(),
		DataDir: cfg.LocalStoragePath,
		MDS:     svc,
		Stats:   core,
	})
	if err != nil {
		return fmt.Errorf("composing node: %w", err)
	}

	if _, err := svc.RegisterNode(id, ln.Addr().String()); err != nil {
		return fmt.Errorf("registering node with MDS: %w", err)
	}

	housekeeper := hk.New(time.Second)
	housekeeper.Reg("heartbeat", func() time.Duration {
		if err := svc.Heartbeat(id, registry.HeartbeatStats{}); err != nil {
			glog.Warningf("heartbeat: %v", err)
		}
		return 5 * time.Second
	}, 5*time.Second)
	go housekeeper.Run()
	defer housekeeper.Stop(nil)

	pool := transport.NewBufPool(64, 64<<10)
	go func() {
		if err := n.Serve(ln, pool); err != nil {
			glog.Warningf("data plane: %v", err)
		}
	}()
	defer n.Close()

	adminSrv := admin.New(svc.Registry, promhttp.HandlerFor(core.Registry(), promhttp.HandlerOpts{}))
	httpAddr := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.HTTPServerPort)
	httpSrv := &http.Server{Addr: httpAddr, Handler: adminSrv}

	glog.Infof("gedsnode %s: data plane on %s, admin on %s", id, ln.Addr().String(), httpAddr)
	return httpSrv.ListenAndServe()
}

// openMetadataBackend picks the MDS's placement-record backend per
// cfg.MetadataStorePath: empty opens the in-memory kvs.Store, losing all
// records on restart; a path opens the buntdb-backed kvs.PersistentStore
// instead, so an operator can opt a deployment into surviving restarts
// without a code change.
func openMetadataBackend(cfg config.Config) (kvs.Backend, error) {
	if cfg.MetadataStorePath == "" {
		return kvs.New(), nil
	}
	return kvs.OpenPersistentStore(cfg.MetadataStorePath)
}
