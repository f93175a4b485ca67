package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/kubev2v/flowharness/internal/container"
	"github.com/kubev2v/flowharness/internal/images"
)

const (
	MQTTBrokerService  = "mqtt-broker"
	KafkaBrokerService = "kafka-broker"

	MQTTPort  = 1883
	KafkaPort = 9092

	mqttStartedLog    = "mosquitto version"
	mqttRunningLog    = "running"
	kafkaStartedLog   = "Kafka Server started"
	kafkaBin          = "/opt/kafka/bin"
	brokerStartupWait = 60 * time.Second
)

// MQTTBroker is a mosquitto broker logging every packet to stderr.
type MQTTBroker struct {
	*container.Container

	env *Env
}

func NewMQTTBroker(env *Env) *MQTTBroker {
	return &MQTTBroker{
		Container: container.New(env.Runtime, env.ServiceName(MQTTBrokerService), "", env.Network),
		env:       env,
	}
}

func (b *MQTTBroker) URI() string {
	return fmt.Sprintf("tcp://%s:%d", b.Name(), MQTTPort)
}

func (b *MQTTBroker) Deploy(ctx context.Context) error {
	image, err := b.env.Images.GetImage(ctx, images.EngineMQTTBroker)
	if err != nil {
		return err
	}
	b.SetImage(image)
	if err := b.Container.Deploy(ctx); err != nil {
		return err
	}
	return b.WaitForLog(ctx, brokerStartupWait, mqttStartedLog, mqttRunningLog)
}

// WaitForPublish waits until the broker logged a PUBLISH of size bytes on topic.
func (b *MQTTBroker) WaitForPublish(ctx context.Context, timeout time.Duration, topic string, size int) error {
	return b.WaitForLogRegex(ctx, timeout, fmt.Sprintf(`Received PUBLISH from .*%s.*\(%d bytes\)`, topic, size))
}

// KafkaBroker is a single node KRaft broker advertising itself under its container name.
type KafkaBroker struct {
	*container.Container

	env *Env
}

func NewKafkaBroker(env *Env) *KafkaBroker {
	c := container.New(env.Runtime, env.ServiceName(KafkaBrokerService), "", env.Network)
	c.Env["KAFKA_ADVERTISED_LISTENERS"] = fmt.Sprintf("PLAINTEXT://%s:%d", c.Name(), KafkaPort)
	return &KafkaBroker{Container: c, env: env}
}

func (k *KafkaBroker) BootstrapServers() string {
	return fmt.Sprintf("%s:%d", k.Name(), KafkaPort)
}

func (k *KafkaBroker) Deploy(ctx context.Context) error {
	image, err := k.env.Images.GetImage(ctx, images.EngineKafkaBroker)
	if err != nil {
		return err
	}
	k.SetImage(image)
	if err := k.Container.Deploy(ctx); err != nil {
		return err
	}
	return k.WaitForLog(ctx, brokerStartupWait, kafkaStartedLog)
}

func (k *KafkaBroker) CreateTopic(ctx context.Context, topic string) error {
	_, err := k.Run(ctx, kafkaBin+"/kafka-topics.sh", "--create", "--if-not-exists",
		"--topic", topic, "--bootstrap-server", fmt.Sprintf("localhost:%d", KafkaPort))
	return err
}

// Produce publishes one message to topic with the console producer.
func (k *KafkaBroker) Produce(ctx context.Context, topic, message string) error {
	_, err := k.Run(ctx, "/bin/bash", "-c", fmt.Sprintf("echo '%s' | %s/kafka-console-producer.sh --bootstrap-server localhost:%d --topic %s",
		message, kafkaBin, KafkaPort, topic))
	return err
}

// Consume reads the topic from the beginning until the timeout and returns the messages.
func (k *KafkaBroker) Consume(ctx context.Context, topic string, timeout time.Duration) (string, error) {
	return k.Run(ctx, kafkaBin+"/kafka-console-consumer.sh", "--bootstrap-server", fmt.Sprintf("localhost:%d", KafkaPort),
		"--topic", topic, "--from-beginning", "--timeout-ms", fmt.Sprint(timeout.Milliseconds()))
}
