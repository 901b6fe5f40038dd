package bootstrap

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"ctgov-compliance-be/internal/config"
	"ctgov-compliance-be/internal/controller"
	"ctgov-compliance-be/internal/pkg/logger"
	"ctgov-compliance-be/internal/repository/implementation"
	"ctgov-compliance-be/internal/repository/memory"
	refdatarepo "ctgov-compliance-be/internal/repository/refdata"
	"ctgov-compliance-be/internal/service"
	"ctgov-compliance-be/pkg/events"
	"ctgov-compliance-be/pkg/extract"
	"ctgov-compliance-be/pkg/extract/llmassist"
	"ctgov-compliance-be/pkg/extract/pattern"
	"ctgov-compliance-be/pkg/extract/strategy"
	"ctgov-compliance-be/pkg/llm/factory"
)

type Container struct {
	// Controllers
	QueryController controller.IQueryController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	extractLogger := log.New(os.Stdout, "[EXTRACT] ", log.LstdFlags)

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)
	auditPublisher := events.NewPublisher(pubSub, cfg.App.AuditTopicName, extractLogger)

	auditLogger := logger.NewIsolatedLogger(cfg.App.AuditLogFilePath)
	consumerService := service.NewConsumerService(pubSub, cfg.App.AuditTopicName, auditLogger)

	// 3. Reference data (Redis)
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}
	refProvider := refdatarepo.NewRedisProvider(rdb, cfg.Query.RefdataTTL, extractLogger)

	// 4. Extraction strategies
	deterministic := pattern.NewExtractor(refProvider, time.Now, extractLogger)

	var llmExtractor extract.Extractor
	llmProvider, err := factory.NewProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		cfg.Ai.OllamaBaseURL,
		cfg.Ai.AnthropicAPIKey,
	)
	if err != nil {
		log.Printf("[WARN] LLM provider unavailable (%v), running rule-based only", err)
	} else {
		llmExtractor = llmassist.NewExtractor(llmProvider, cfg.Ai.RequestTimeout, time.Now, extractLogger)
		log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)
	}
	selector := strategy.NewSelector(deterministic, llmExtractor, extractLogger)

	// 5. Repositories
	sessionRepo := memory.NewSessionRepository()
	trialRepo := implementation.NewTrialRepository(db)

	// 6. Services
	queryService := service.NewQueryService(
		sessionRepo,
		selector,
		trialRepo,
		auditPublisher,
		sysLogger,
		time.Now,
	)

	// 7. Controllers
	return &Container{
		QueryController: controller.NewQueryController(queryService),

		ConsumerService: consumerService,
	}
}
