package taskqueue

import (
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
)

var (
	asynqClient *asynq.Client
	asynqMux    = asynq.NewServeMux()
	asynqSrv    *asynq.Server

	webhookURL string
	httpClient = &http.Client{Timeout: 10 * time.Second}
)

// StartWorkers starts the Asynq workers. Blocks; run in a goroutine.
func StartWorkers(redisAddr, notifyWebhookURL string) {
	webhookURL = notifyWebhookURL

	log.Printf("TASKQUEUE: starting workers with Redis at %s", redisAddr)
	asynqClient = asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	asynqMux.HandleFunc(TypeSendAlert, handleSendAlertTask)
	asynqSrv = asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{Concurrency: 10})
	if err := asynqSrv.Run(asynqMux); err != nil {
		log.Fatalf("TASKQUEUE: failed to start workers: %v", err)
	}
}

// StopWorkers stops workers and closes the client
func StopWorkers() {
	if asynqSrv != nil {
		asynqSrv.Stop()
	}
	if asynqClient != nil {
		asynqClient.Close()
	}
	log.Println("TASKQUEUE: workers stopped")
}
