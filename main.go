package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"github.com/query-manager/auth"
	"github.com/query-manager/config"
	"github.com/query-manager/connections"
	"github.com/query-manager/database"
	"github.com/query-manager/hostcache"
)

const version = "0.1"

type options struct {
	Config  string `short:"c" long:"config" default:"config.cfg" description:"Path to the configuration file"`
	Version bool   `long:"version" description:"Print the version and exit"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("query-manager v%s\n", version)
		return
	}

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006/01/02 15:04:05",
	})

	log.Infof("Query Manager v%s", version)
	cfg, err := config.Load(opts.Config)
	if err != nil {
		log.Fatal(err)
	}

	if err := auth.SelfTest(); err != nil {
		log.Fatalf("SHA-256 self test failed: %v", err)
	}

	server := connections.NewServer(cfg)
	server.UpdateClock()

	db, err := database.Open(cfg.DatabaseFile, cfg.MaxCachedStatements, "sql", server.Now)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	log.Infof("Max cached host names: %d", cfg.MaxCachedHostNames)
	log.Infof("Host name expire time: %dms", cfg.HostNameExpireTime)
	hosts := hostcache.New(cfg.MaxCachedHostNames, cfg.HostNameExpireTime, server.Now)
	server.Attach(db, hosts)

	if err := server.Init(); err != nil {
		log.Fatal(err)
	}
	defer server.Close()

	// SIGPIPE is ignored for us by the runtime; SIGINT/SIGTERM stop the
	// loop between ticks.
	shutdown := make(chan struct{})
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sc
		log.Infof("Received signal %v, shutting down...", sig)
		close(shutdown)
	}()

	server.Run(shutdown)
}
