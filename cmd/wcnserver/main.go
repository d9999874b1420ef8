// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"golang.org/x/sync/errgroup"

	"github.com/chess-erdos/wcnserver/internal/api"
	"github.com/chess-erdos/wcnserver/internal/config"
	"github.com/chess-erdos/wcnserver/internal/ingest"
	"github.com/chess-erdos/wcnserver/internal/runtimeEnv"
	"github.com/chess-erdos/wcnserver/internal/store"
	"github.com/chess-erdos/wcnserver/pkg/log"
)

func main() {
	var (
		flagConfigFile = flag.String("config", "", "path to a JSON config file")
		flagEnvFile    = flag.String("env", "", "path to a .env file to load before startup")
		flagLogLevel   = flag.String("loglevel", "info", "debug, info, warn, or err")
		flagGops       = flag.Bool("gops", false, "start a github.com/google/gops runtime-introspection agent")
	)
	flag.Parse()

	log.SetLogLevel(*flagLogLevel)

	if *flagEnvFile != "" {
		if err := runtimeEnv.LoadEnv(*flagEnvFile); err != nil {
			log.Fatalf("main: load env file: %v", err)
		}
	}

	if err := config.Init(*flagConfigFile); err != nil {
		log.Fatalf("main: config: %v", err)
	}

	if *flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("main: gops agent: %v", err)
		}
	}

	s, err := store.Open(config.Keys.DBPath)
	if err != nil {
		log.Fatalf("main: open store: %v", err)
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver := ingest.New(s, ingest.Config{
		ArchiveListURL: config.Keys.ArchiveListURL,
		HTTPClient:     &http.Client{},
		PollInterval:   time.Duration(config.Keys.PollIntervalSeconds) * time.Second,
	})

	restApi := &api.RestApi{Store: s}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return restApi.Serve(groupCtx, config.Keys.Addr) })
	group.Go(func() error { return driver.Run(groupCtx) })

	runtimeEnv.SystemdNotifiy(true, "READY=1")

	if err := group.Wait(); err != nil && groupCtx.Err() == nil {
		log.Fatalf("main: %v", err)
	}

	runtimeEnv.SystemdNotifiy(false, "STOPPING=1")
}
