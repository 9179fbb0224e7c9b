package main

import (
	"context"
	"os"
	"strconv"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"

	"support-agent/handler"
	"support-agent/internal/integrations/openai"
	"support-agent/internal/integrations/paramstore"
	"support-agent/internal/integrations/ticketdesk"
	"support-agent/internal/persona"
	"support-agent/internal/queue"
	"support-agent/internal/repository"
	"support-agent/internal/usecase"
	"support-agent/pkg/logging"
)

func main() {
	ctx := context.Background()

	// Local runs pick up a .env; on Lambda the file is absent and this is a no-op.
	_ = godotenv.Load()

	logger := logging.New(os.Getenv("LOG_LEVEL"))

	// ---- Configuration (read only here) ----
	stateTable := mustEnv(logger, "STATE_TABLE")
	paramPrefix := mustEnv(logger, "PARAM_PREFIX")
	ticketAPIURL := mustEnv(logger, "TICKET_API_URL")
	retryQueueURL := os.Getenv("TICKET_RETRY_QUEUE_URL")
	maxMessageLen := envInt("MAX_MESSAGE_LENGTH", 2000)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		logger.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	stateClient, err := repository.New(awsdynamodb.NewFromConfig(cfg), stateTable)
	if err != nil {
		logger.Error("failed to create state client", "err", err)
		os.Exit(1)
	}
	openaiClient, err := openai.NewClient(ssmClient, paramPrefix)
	if err != nil {
		logger.Error("failed to create OpenAI client", "err", err)
		os.Exit(1)
	}
	ticketClient, err := ticketdesk.NewClient(ticketAPIURL, ssmClient, paramPrefix)
	if err != nil {
		logger.Error("failed to create ticket client", "err", err)
		os.Exit(1)
	}

	var retries usecase.RetryPublisher = queue.Noop{}
	if retryQueueURL != "" {
		publisher, err := queue.NewSQSPublisher(awssqs.NewFromConfig(cfg), retryQueueURL)
		if err != nil {
			logger.Error("failed to create retry publisher", "err", err)
			os.Exit(1)
		}
		retries = publisher
	} else {
		logger.Warn("TICKET_RETRY_QUEUE_URL not set, failed ticket creations will not be retried")
	}

	// ---- Handler ----
	chatService, err := usecase.NewChatService(ssmClient, openaiClient, stateClient, ticketClient, retries, persona.NewRegistry(), logger, paramPrefix, maxMessageLen)
	if err != nil {
		logger.Error("failed to create chat service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(chatService)
	if err != nil {
		logger.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(logger *logging.Logger, key string) string {
	v := os.Getenv(key)
	if v == "" {
		logger.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
