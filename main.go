package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"homepanel/internal/bridge"
	"homepanel/internal/broadcast"
	"homepanel/internal/config"
	"homepanel/internal/db"
	"homepanel/internal/devstore"
	"homepanel/internal/engine"
	"homepanel/internal/metrics"
	"homepanel/internal/mqtt"
	"homepanel/internal/notify"
	"homepanel/internal/redis"
	"homepanel/internal/scheduler"
	"homepanel/internal/taskqueue"
	"homepanel/internal/web"

	"github.com/pion/mdns/v2"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	dbConn, err := db.NewDB(cfg.DBURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer dbConn.Close(context.Background())

	redisClient := redis.NewRedisClient(cfg.RedisAddr)

	metrics.Init(cfg.StatsdAddr)
	defer metrics.Close()

	go taskqueue.StartWorkers(cfg.RedisAddr, cfg.NotifyWebhookURL)

	publisher := broadcast.NewPublisher(redisClient)
	hub := broadcast.NewHub(redisClient)
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	store := devstore.NewStore(dbConn, redisClient)
	eng := engine.NewEngine(store, dbConn, publisher, notify.NewSender())

	ticker := scheduler.NewTicker(eng.Tick)
	if err := ticker.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	var ingest *mqtt.Ingest
	if cfg.MQTTBroker != "" {
		mqttClient, err := mqtt.NewMQTTClient(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			log.Fatalf("Failed to connect to MQTT: %v", err)
		}
		ingest = mqtt.NewIngest(mqttClient, store, publisher, eng)
		if err := ingest.Start(); err != nil {
			log.Fatalf("Failed to start MQTT ingest: %v", err)
		}
	} else {
		log.Println("MQTT broker not configured, ingest disabled")
	}

	webServer := web.NewWebServer(dbConn, store, publisher, hub, eng)
	go func() {
		if err := webServer.Start(cfg.HTTPAddr); err != nil {
			log.Fatalf("Web server failed: %v", err)
		}
	}()

	go startMDNSServer(cfg.MDNSLocalName)

	bridgeCtx, stopBridge := context.WithCancel(context.Background())
	defer stopBridge()
	if cfg.RelayURL != "" {
		agentID := cfg.RelayAgentID
		if agentID == "" {
			agentID = cfg.MDNSLocalName
		}
		agent := bridge.NewAgent(cfg.RelayURL, "http://localhost"+cfg.HTTPAddr, agentID)
		go agent.Run(bridgeCtx)
	}

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	ticker.Stop()
	if ingest != nil {
		ingest.Stop()
	}
	taskqueue.StopWorkers()
	stopHub()
	log.Println("Shutdown complete")
}

func startMDNSServer(localName string) {
	addr4, err := net.ResolveUDPAddr("udp4", mdns.DefaultAddressIPv4)
	if err != nil {
		log.Println("Failed to resolve UDP4 address for mDNS:", err)
		return
	}

	addr6, err := net.ResolveUDPAddr("udp6", mdns.DefaultAddressIPv6)
	if err != nil {
		log.Println("Failed to resolve UDP6 address for mDNS:", err)
		return
	}

	l4, err := net.ListenUDP("udp4", addr4)
	if err != nil {
		log.Println("Failed to listen on UDP4 for mDNS:", err)
		return
	}

	l6, err := net.ListenUDP("udp6", addr6)
	if err != nil {
		log.Println("Failed to listen on UDP6 for mDNS:", err)
		return
	}

	_, err = mdns.Server(ipv4.NewPacketConn(l4), ipv6.NewPacketConn(l6), &mdns.Config{
		LocalNames: []string{localName},
	})
	if err != nil {
		log.Println("Failed to start mDNS server:", err)
	}
}
