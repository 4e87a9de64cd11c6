// Command dispatcher is a thin CLI wrapping the Dispatcher for manual job
// submission, grounded on the teacher's preference for small single-purpose
// cmd/ binaries per service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storypipeline/internal/broker"
	"storypipeline/internal/config"
	"storypipeline/internal/dispatcher"
	"storypipeline/internal/logging"
	"storypipeline/internal/repository"
)

func main() {
	title := flag.String("title", "", "story title")
	prompt := flag.String("prompt", "", "user prompt")
	userID := flag.String("user", "", "submitting user id")
	flag.Parse()

	if *title == "" || *prompt == "" || *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: dispatcher -title TITLE -prompt PROMPT -user USER_ID")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbPool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer dbPool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("parse redis url", zap.Error(err))
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	storyRepo := repository.NewPostgresStoryRepository(dbPool, logger)
	brokerClient := broker.NewRedisBroker(redisClient, logger)
	d := dispatcher.New(storyRepo, brokerClient, logger)

	storyID, err := d.Submit(ctx, *title, *prompt, *userID)
	if err != nil {
		logger.Fatal("submit story", zap.Error(err))
	}

	fmt.Println(storyID.String())
}
