package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kryote/support-chat/internal/ai"
	"github.com/kryote/support-chat/internal/chat"
	"github.com/kryote/support-chat/internal/config"
	"github.com/kryote/support-chat/internal/db"
	"github.com/kryote/support-chat/internal/logger"
	"github.com/kryote/support-chat/internal/store/rabbitmq"
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log = log.With("component", "worker")

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatal("db connect failed", "error", err)
	}

	completion := ai.NewRAGClient(cfg.RAGBaseURL, cfg.RAGTimeout)
	titler := ai.NewOpenAITitler(cfg.OpenAIAPIKey, cfg.TitleModel)

	svc := chat.NewService(chat.NewRepo(gdb), completion, titler, log, chat.ServiceOptions{
		ContextWindowSize: cfg.ChatContextWindowSize,
		PageSize:          cfg.HistoryPageSize,
		PageMax:           cfg.HistoryPageMax,
		CompletionTimeout: cfg.RAGTimeout,
		TitleTimeout:      cfg.TitleTimeout,
	})

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal("rabbit dial failed", "error", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal("rabbit channel failed", "error", err)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.Fatal("queue declare failed", "error", err)
	}

	concurrency := workerConcurrency()
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatal("qos failed", "error", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal("consume failed", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("worker started", "queue", cfg.RabbitQueue, "concurrency", concurrency)

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m rabbitmq.TurnJobMessage
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					log.Warn("bad message", "worker", workerID, "error", err)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := svc.RunTurnJob(ctx, m.JobID); err != nil {
					log.Error("turn job failed",
						"worker", workerID, "job_id", m.JobID,
						"cost", time.Since(start), "error", err)
					_ = d.Nack(false, false)
					continue
				}

				log.Info("turn job done",
					"worker", workerID, "job_id", m.JobID, "cost", time.Since(start))
				if err := d.Ack(false); err != nil {
					log.Warn("ack failed", "worker", workerID, "job_id", m.JobID, "error", err)
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Warn("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}
