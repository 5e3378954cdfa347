package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/positsync/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/positsync/internal/metrics"
)

// initKafkaProducer создаёт producer, если заданы брокеры.
// Ошибка не останавливает сервис: события остаются в outbox до появления Kafka.
func initKafkaProducer(cfg Config, logger *log.Entry) *kafka.Producer {
	if len(cfg.KafkaBrokers) == 0 {
		return nil
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:  cfg.KafkaBrokers,
		ClientID: cfg.KafkaClientID,
	})
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil
	}

	logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
	return producer
}

// initOrderConsumer подписывается на события заказов. Без producer сообщения не уходят в DLQ,
// а остаются неподтверждёнными и будут прочитаны снова после перезапуска.
func initOrderConsumer(
	cfg Config,
	handler kafka.OrderEventHandler,
	producer *kafka.Producer,
	workerMetrics *metrics.WorkerMetrics,
	logger *log.Entry,
) (*kafka.Consumer, error) {
	if !cfg.KafkaConsumeOrders || len(cfg.KafkaBrokers) == 0 {
		return nil, nil
	}

	consumerLogger := logger.WithField("component", "order-event-consumer")
	opts := []kafka.ConsumerOption{
		kafka.WithConsumerLogger(consumerLogger),
		kafka.WithConsumerMetrics(workerMetrics),
	}
	if producer != nil {
		opts = append(opts, kafka.WithDLQ(producer))
	}

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:    cfg.KafkaBrokers,
		GroupID:    cfg.KafkaGroupID,
		Topics:     []string{kafka.TopicOrderEvents},
		MaxRetries: cfg.KafkaMaxRetries,
		RetryDelay: cfg.KafkaRetryDelay,
	}, kafka.NewOrderMessageHandler(handler, consumerLogger), opts...)
	if err != nil {
		return nil, err
	}

	logger.WithFields(log.Fields{
		"group_id": cfg.KafkaGroupID,
		"topic":    kafka.TopicOrderEvents,
	}).Info("kafka order consumer initialized")
	return consumer, nil
}

// closeKafkaProducer закрывает producer если он не nil.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

func stopKafkaConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop kafka consumer")
	}
}
