package metrics

import (
	"log"
	"time"

	"github.com/DataDog/datadog-go/statsd"
)

var client *statsd.Client

// Init creates the statsd client. An empty addr leaves metrics disabled;
// every helper is a no-op then.
func Init(addr string) {
	if addr == "" {
		log.Println("METRICS: statsd address not configured, metrics disabled")
		return
	}

	var err error
	client, err = statsd.New(addr)
	if err != nil {
		log.Printf("METRICS: failed to create statsd client: %v", err)
		return
	}
	client.Namespace = "homepanel."
	log.Printf("METRICS: statsd metrics initialized at %s", addr)
}

// Count adds value to a counter
func Count(name string, value int64, tags ...string) {
	if client == nil {
		return
	}
	if err := client.Count(name, value, tags, 1); err != nil {
		log.Printf("METRICS: failed to emit count %s: %v", name, err)
	}
}

// Timing records a duration
func Timing(name string, value time.Duration, tags ...string) {
	if client == nil {
		return
	}
	if err := client.Timing(name, value, tags, 1); err != nil {
		log.Printf("METRICS: failed to emit timing %s: %v", name, err)
	}
}

// Gauge sets a gauge value
func Gauge(name string, value float64, tags ...string) {
	if client == nil {
		return
	}
	if err := client.Gauge(name, value, tags, 1); err != nil {
		log.Printf("METRICS: failed to emit gauge %s: %v", name, err)
	}
}

// Close flushes and closes the client
func Close() {
	if client != nil {
		client.Close()
	}
}
