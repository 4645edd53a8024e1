package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
	"github.com/vladislavdragonenkov/flashsale/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/flashsale/internal/service/outbox"
)

const (
	defaultLimit       = 100
	defaultIdleTimeout = 2 * time.Second

	headerReplayedFrom = "x-replayed-from"
)

var errNotReplayable = errors.New("message is not a dead letter envelope")

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	idleTimeout time.Duration
}

func parseConfig(args []string, lookup func(string) (string, bool)) (config, error) {
	var (
		cfg        config
		brokersRaw string
	)
	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: KAFKA_BROKERS)")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "dead-letter topic to scan")
	fs.StringVar(&cfg.targetTopic, "target-topic", "", "override target topic; empty replays into the original topic")
	fs.IntVar(&cfg.limit, "limit", defaultLimit, "max number of messages to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "republish messages; without it only reports candidates")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading a partition after this much silence")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if strings.TrimSpace(brokersRaw) == "" && lookup != nil {
		brokersRaw, _ = lookup("KAFKA_BROKERS")
	}
	cfg.brokers = splitBrokers(brokersRaw)
	cfg.sourceTopic = strings.TrimSpace(cfg.sourceTopic)
	cfg.targetTopic = strings.TrimSpace(cfg.targetTopic)

	switch {
	case len(cfg.brokers) == 0:
		return cfg, errors.New("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	case cfg.sourceTopic == "":
		return cfg, errors.New("source-topic is required")
	case cfg.limit <= 0:
		return cfg, errors.New("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return cfg, errors.New("idle-timeout must be > 0")
	}
	return cfg, nil
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, chunk := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// source: чтение партиций DLQ. Реализуется sarama.Consumer.
type source interface {
	Partitions(topic string) ([]int32, error)
	ConsumePartition(topic string, partition int32, offset int64) (sarama.PartitionConsumer, error)
}

// watermarks сообщает конечный offset партиции на момент запуска.
type watermarks interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
}

// replayTarget: получатель восстановленных сообщений.
type replayTarget interface {
	PublishRaw(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

// candidate: сообщение, восстановленное из конверта DLQ.
type candidate struct {
	topic string
	key   string
	value []byte
}

// summary: итог прохода по DLQ.
type summary struct {
	Scanned  int
	Replayed int
	Skipped  int
}

type replayer struct {
	cfg    config
	src    source
	marks  watermarks
	target replayTarget
	logger *log.Entry
}

// Run читает партиции по возрастанию номера, пока не исчерпан limit.
func (r *replayer) Run(ctx context.Context) (summary, error) {
	var total summary
	if r.cfg.execute && r.target == nil {
		return total, errors.New("replay target is required with -execute")
	}

	partitions, err := r.src.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("list partitions of %s: %w", r.cfg.sourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		budget := r.cfg.limit - total.Scanned
		if budget <= 0 {
			break
		}
		part, err := r.scanPartition(ctx, partition, budget)
		total.Scanned += part.Scanned
		total.Replayed += part.Replayed
		total.Skipped += part.Skipped
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (r *replayer) scanPartition(ctx context.Context, partition int32, budget int) (summary, error) {
	var stats summary

	end := int64(-1)
	if r.marks != nil {
		newest, err := r.marks.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
		if err != nil {
			return stats, fmt.Errorf("newest offset of partition %d: %w", partition, err)
		}
		oldest, err := r.marks.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
		if err != nil {
			return stats, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
		}
		if newest <= oldest {
			return stats, nil
		}
		end = newest
	}

	pc, err := r.src.ConsumePartition(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for stats.Scanned < budget {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case cerr, ok := <-pc.Errors():
			if ok && cerr != nil {
				return stats, fmt.Errorf("partition %d: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil {
				return stats, nil
			}
			if end >= 0 && msg.Offset >= end {
				return stats, nil
			}
			stats.Scanned++
			replayed, err := r.handle(ctx, msg)
			if err != nil {
				return stats, err
			}
			if replayed {
				stats.Replayed++
			} else {
				stats.Skipped++
			}
			if end >= 0 && msg.Offset+1 >= end {
				return stats, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(r.cfg.idleTimeout)
		}
	}
	return stats, nil
}

// handle восстанавливает одно сообщение. Нераспознанные конверты пропускаются,
// ошибка публикации прерывает проход.
func (r *replayer) handle(ctx context.Context, msg *sarama.ConsumerMessage) (bool, error) {
	fields := log.Fields{"partition": msg.Partition, "offset": msg.Offset}

	c, err := decodeDeadLetter(msg, r.cfg.targetTopic)
	if err != nil {
		r.logger.WithError(err).WithFields(fields).Warn("skip dead letter")
		return false, nil
	}
	fields["target_topic"] = c.topic
	fields["key"] = c.key

	if !r.cfg.execute {
		r.logger.WithFields(fields).Info("replay candidate (dry-run)")
		return true, nil
	}

	headers := map[string]string{
		headerReplayedFrom: fmt.Sprintf("%s/%d/%s", msg.Topic, msg.Partition, strconv.FormatInt(msg.Offset, 10)),
	}
	if err := r.target.PublishRaw(ctx, c.topic, c.key, c.value, headers); err != nil {
		return false, fmt.Errorf("replay offset %d: %w", msg.Offset, err)
	}
	r.logger.WithFields(fields).Info("dead letter replayed")
	return true, nil
}

// decodeDeadLetter понимает конверт Kafka-консьюмера и конверт outbox worker.
// Пустой override означает возврат в исходный топик.
func decodeDeadLetter(msg *sarama.ConsumerMessage, override string) (candidate, error) {
	var consumed kafka.DeadLetter
	if err := json.Unmarshal(msg.Value, &consumed); err == nil && consumed.OriginalValue != "" {
		topic := override
		if topic == "" {
			topic = strings.TrimSpace(consumed.OriginalTopic)
		}
		if topic == "" {
			topic = header(msg, kafka.HeaderOriginalTopic)
		}
		if topic == "" {
			return candidate{}, errors.New("consumer dead letter has no original topic")
		}
		return candidate{topic: topic, key: consumed.OriginalKey, value: []byte(consumed.OriginalValue)}, nil
	}

	var letter outbox.DeadLetter
	if err := json.Unmarshal(msg.Value, &letter); err != nil {
		return candidate{}, fmt.Errorf("%w: %v", errNotReplayable, err)
	}
	if letter.EventType == "" || len(letter.Payload) == 0 {
		return candidate{}, errNotReplayable
	}

	original := domain.OutboxMessage{
		ID:            letter.OutboxID,
		AggregateType: letter.AggregateType,
		AggregateID:   letter.AggregateID,
		EventType:     letter.EventType,
		Payload:       letter.Payload,
	}
	topic := override
	if topic == "" {
		resolved, err := kafka.TopicFor(original.EventType)
		if err != nil {
			return candidate{}, err
		}
		topic = resolved
	}
	return candidate{topic: topic, key: kafka.OutboxKey(original), value: []byte(letter.Payload)}, nil
}

func header(msg *sarama.ConsumerMessage, name string) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == name {
			return strings.TrimSpace(string(h.Value))
		}
	}
	return ""
}

func run(ctx context.Context, cfg config, logger *log.Entry) (summary, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, saramaCfg)
	if err != nil {
		return summary{}, fmt.Errorf("create kafka client: %w", err)
	}
	defer func() { _ = client.Close() }()

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		return summary{}, fmt.Errorf("create kafka consumer: %w", err)
	}
	defer func() { _ = consumer.Close() }()

	r := &replayer{cfg: cfg, src: consumer, marks: client, logger: logger}
	if cfg.execute {
		producer, err := kafka.NewProducer(cfg.brokers)
		if err != nil {
			return summary{}, err
		}
		defer func() { _ = producer.Close() }()
		r.target = producer
	}
	return r.Run(ctx)
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := parseConfig(os.Args[1:], os.LookupEnv)
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.WithField("component", "dlq-reprocess")
	logger.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
	}).Info("starting dlq replay")

	result, err := run(ctx, cfg, logger)
	fields := log.Fields{"scanned": result.Scanned, "replayed": result.Replayed, "skipped": result.Skipped}
	if err != nil {
		logger.WithError(err).WithFields(fields).Fatal("dlq replay failed")
	}
	logger.WithFields(fields).Info("dlq replay finished")
}
