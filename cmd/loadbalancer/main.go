// cmd/loadbalancer/main.go
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"load-balancer/internal/config"
	"load-balancer/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Unable to load config: %v", err)
	}

	sup, err := supervisor.New(cfg, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("Unable to start load balancer: %v", err)
	}

	done := make(chan struct{})
	watchDone := make(chan struct{})

	go func() {
		if err := config.Watch(*configPath, func(newCfg *config.Config) {
			if rerr := sup.Reload(newCfg); rerr != nil {
				log.Printf("config reload failed: %v", rerr)
			}
		}, watchDone); err != nil {
			log.Printf("config watcher stopped: %v", err)
		}
	}()

	go func() {
		log.Printf("Load balancer listening on port %d, stats on port %d...", cfg.ProxyPort, cfg.StatsPort)
		sup.Serve(done)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down load balancer...")
	close(watchDone)
	close(done)
	log.Println("Load balancer stopped.")
}
