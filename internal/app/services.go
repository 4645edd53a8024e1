package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/flashsale/internal/eventbus"
	"github.com/vladislavdragonenkov/flashsale/internal/events"
	"github.com/vladislavdragonenkov/flashsale/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/flashsale/internal/metrics"
	"github.com/vladislavdragonenkov/flashsale/internal/service/admission"
	"github.com/vladislavdragonenkov/flashsale/internal/service/balance"
	"github.com/vladislavdragonenkov/flashsale/internal/service/bridge"
	"github.com/vladislavdragonenkov/flashsale/internal/service/compensation"
	"github.com/vladislavdragonenkov/flashsale/internal/service/coupon"
	"github.com/vladislavdragonenkov/flashsale/internal/service/dataplatform"
	"github.com/vladislavdragonenkov/flashsale/internal/service/inventory"
	"github.com/vladislavdragonenkov/flashsale/internal/service/lock"
	"github.com/vladislavdragonenkov/flashsale/internal/service/outbox"
	"github.com/vladislavdragonenkov/flashsale/internal/service/ranking"
	"github.com/vladislavdragonenkov/flashsale/internal/service/saga"
)

// Services: собранные компоненты процесса.
type Services struct {
	Bus *eventbus.Bus

	Coupons   *coupon.Service
	Inventory *inventory.Service
	Balances  *balance.Service

	Admission     *admission.Service
	DirectIssuer  *admission.DirectIssuer
	AdmissionLoop *admission.Worker

	Locked        *saga.LockedExecutor
	Choreographer *saga.Choreographer

	Ranking      *ranking.Service
	DataPlatform *dataplatform.Sender

	OutboxWorker  *outbox.Worker
	OutboxCleaner *outbox.Cleaner

	// Consumers задаёт группы Kafka; пусто, если Kafka выключена.
	Consumers []consumerSpec
}

// buildServices связывает сервисы поверх хранилищ. producer == nil означает
// режим без Kafka: заявки выдаются синхронно, outbox доставляется внутри процесса.
func buildServices(cfg Config, deps *Dependencies, producer *kafka.Producer, logger *log.Entry) *Services {
	component := func(name string) *log.Entry { return logger.WithField("component", name) }
	store := deps.Coordination
	sagaMetrics := metrics.NewSagaMetrics()

	s := &Services{Bus: eventbus.New(component("eventbus"))}

	s.Coupons = coupon.NewService(deps.Coupons, deps.UserCoupons, component("coupon"))
	s.Inventory = inventory.NewService(deps.Products, component("inventory"))
	s.Balances = balance.NewService(deps.Balances, component("balance"))

	br := bridge.New(s.Bus, component("bridge"))
	guard := compensation.NewGuard(store)
	inventory.NewHandler(s.Inventory, s.Bus, br, guard, component("inventory-handler")).Register()
	coupon.NewHandler(s.Coupons, s.Bus, br, guard, component("coupon-handler")).Register()
	balance.NewHandler(s.Balances, s.Bus, br, guard, component("balance-handler")).Register()

	// Выдача купонов.
	gate := admission.NewGate(store, component("admission-gate"))
	queue := admission.NewQueue(store)
	cache := admission.NewCouponCache(store, deps.Coupons, component("coupon-cache"))
	results := admission.NewResultStore(store)
	s.DirectIssuer = admission.NewDirectIssuer(cache, gate, deps.Coupons, results, component("coupon-issuer"))
	s.Admission = admission.NewService(gate, queue, cache, results, deps.Coupons, component("admission-service"))

	var issuer admission.Issuer = s.DirectIssuer
	if producer != nil {
		issuer = kafka.NewCouponIssuePublisher(producer, results, component("coupon-issue-publisher"))
	}
	s.AdmissionLoop = admission.NewWorker(queue, issuer,
		admission.WithLogger(component("admission-worker")),
		admission.WithPollInterval(cfg.WorkerInterval),
		admission.WithBatchSize(cfg.WorkerBatchSize),
		admission.WithConcurrency(cfg.WorkerConcurrency),
	)

	// Саги.
	locker := lock.New(store, cfg.LockRetryInterval, component("lock"))
	sideEffects := saga.NewOutboxRecorder(deps.Outbox, sagaMetrics)
	def := saga.NewDefinition(saga.Dependencies{
		Inventory:   inventory.NewBridgeClient(br).WithTimeouts(cfg.BridgeRequestTimeout, cfg.BridgeRestoreTimeout),
		Coupons:     coupon.NewBridgeClient(br).WithTimeouts(cfg.BridgeRequestTimeout, cfg.BridgeRestoreTimeout),
		Balances:    balance.NewBridgeClient(br).WithTimeouts(cfg.BridgeRequestTimeout, cfg.BridgeRestoreTimeout),
		Orders:      deps.Orders,
		SideEffects: sideEffects,
		Retry:       saga.DefaultRetryConfig(),
	}, sagaMetrics, component("saga"))
	s.Locked = saga.NewLockedExecutor(def, locker, sagaMetrics, component("saga-locked"))

	s.Choreographer = saga.NewChoreographer(s.Bus, saga.ChoreographyDependencies{
		Stock:       s.Inventory,
		Coupons:     s.Coupons,
		Balances:    s.Balances,
		Orders:      deps.Orders,
		SideEffects: sideEffects,
		Journal:     deps.Journal,
		Retry:       saga.DefaultRetryConfig(),
	}, sagaMetrics, component("saga-choreography"))
	s.Choreographer.Register()

	// Последствия заказа.
	s.Ranking = ranking.NewService(store, locker, component("ranking"))
	var platform dataplatform.Client = dataplatform.NewLogClient(component("dataplatform"))
	if url := strings.TrimSpace(cfg.DataPlatformURL); url != "" {
		platform = dataplatform.NewHTTPClient(url, cfg.DataPlatformTimeout)
	}
	s.DataPlatform = dataplatform.NewSender(platform, component("dataplatform"))

	outboxOpts := []outbox.Option{
		outbox.WithLogger(component("outbox-worker")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if producer != nil {
		outboxOpts = append(outboxOpts, outbox.WithDLQPublisher(kafka.NewDeadLetterPublisher(producer)))
		s.OutboxWorker = outbox.NewWorker(deps.Outbox, kafka.NewOutboxPublisher(producer), outboxOpts...)
		s.Consumers = []consumerSpec{
			{group: kafka.GroupCouponIssue, topic: kafka.TopicCouponIssue, handler: kafka.CouponIssueHandler(s.DirectIssuer, component("coupon-issue-consumer"))},
			{group: kafka.GroupProductRanking, topic: kafka.TopicProductRanking, handler: kafka.PayloadHandler(s.Ranking.HandleMessage)},
			{group: kafka.GroupDataPlatform, topic: kafka.TopicDataPlatformTransfer, handler: kafka.PayloadHandler(s.DataPlatform.HandleMessage)},
		}
	} else {
		router := outbox.NewRouter(component("outbox-router"))
		router.Handle(events.OutboxProductRanking, s.Ranking.HandleMessage)
		router.Handle(events.OutboxDataPlatformTransfer, s.DataPlatform.HandleMessage)
		s.OutboxWorker = outbox.NewWorker(deps.Outbox, router, outboxOpts...)
	}

	s.OutboxCleaner = outbox.NewCleaner(deps.Outbox,
		outbox.WithCleanerLogger(component("outbox-cleaner")),
		outbox.WithCleanupInterval(cfg.OutboxCleanupInterval),
		outbox.WithCleanupBatchSize(cfg.OutboxCleanupBatchSize),
		outbox.WithRetention(cfg.OutboxRetention),
	)
	return s
}
