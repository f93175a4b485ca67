package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/cucumber/godog"

	"github.com/kubev2v/flowharness/internal/images"
	"github.com/kubev2v/flowharness/internal/infra"
)

func (s *steps) registerServices(ctx *godog.ScenarioContext) {
	ctx.Step(`^a NiFi container is set up( with SSL)?$`, s.nifiIsSetUp)

	ctx.Step(`^the http proxy server is set up$`, s.httpProxyIsSetUp)
	ctx.Step(`^the ([^\s"]+) processor is set up to use the http proxy$`, s.processorUsesHTTPProxy)
	ctx.Step(`^no errors were generated on the http-proxy regarding "([^"]*)"$`, s.proxyAccessed)

	ctx.Step(`^an MQTT broker is set up$`, s.mqttBrokerIsSetUp)
	ctx.Step(`^the ([^\s"]+) processor is set up to use the MQTT broker$`, s.processorUsesMQTTBroker)
	ctx.Step(`^the MQTT broker receives a (\d+) byte message on the "([^"]*)" topic in less than (.+)$`, s.mqttReceives)

	ctx.Step(`^a Kafka broker is set up$`, s.kafkaBrokerIsSetUp)
	ctx.Step(`^the ([^\s"]+) processor is set up to use the Kafka broker$`, s.processorUsesKafkaBroker)
	ctx.Step(`^the "([^"]*)" topic is created on the Kafka broker$`, s.kafkaTopicIsCreated)
	ctx.Step(`^a message with the content "([^"]*)" is published to the "([^"]*)" topic$`, s.kafkaMessageIsPublished)
	ctx.Step(`^the Kafka broker has a message with the content "([^"]*)" on the "([^"]*)" topic in less than (.+)$`, s.kafkaHasMessage)

	ctx.Step(`^a Syslog client with (TCP|UDP) protocol is setup to send logs to minifi$`, s.syslogClientIsSetUp)
	ctx.Step(`^a TCP client is set up to send a test TCP message to minifi$`, s.tcpClientIsSetUp)
}

func (s *steps) nifiIsSetUp(ssl string) error {
	s.sc.Add(infra.NifiService, infra.NewNifiContainer(s.sc.Env, ssl != ""))
	return nil
}

func (s *steps) httpProxyIsSetUp() error {
	s.sc.Add(infra.HTTPProxyService, infra.NewHTTPProxy(s.sc.Env))
	return nil
}

func (s *steps) processorUsesHTTPProxy(name string) error {
	proxy, err := service[*infra.HTTPProxy](s.sc, infra.HTTPProxyService)
	if err != nil {
		return err
	}
	p, err := s.processor("", name)
	if err != nil {
		return err
	}
	user, password := proxy.Credentials()
	p.SetProperty("Proxy Host", proxy.Name()).
		SetProperty("Proxy Port", fmt.Sprint(images.ProxyPort)).
		SetProperty("invokehttp-proxy-username", user).
		SetProperty("invokehttp-proxy-password", password)
	return nil
}

func (s *steps) proxyAccessed(ctx context.Context, url string) error {
	proxy, err := service[*infra.HTTPProxy](s.sc, infra.HTTPProxyService)
	if err != nil {
		return err
	}
	ok, err := proxy.CheckAccess(ctx, url)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("the http proxy did not pass %s through", url)
	}
	return nil
}

func (s *steps) mqttBrokerIsSetUp() error {
	s.sc.Add(infra.MQTTBrokerService, infra.NewMQTTBroker(s.sc.Env))
	return nil
}

func (s *steps) processorUsesMQTTBroker(name string) error {
	broker, err := service[*infra.MQTTBroker](s.sc, infra.MQTTBrokerService)
	if err != nil {
		return err
	}
	p, err := s.processor("", name)
	if err != nil {
		return err
	}
	p.SetProperty("Broker URI", broker.URI())
	return nil
}

func (s *steps) mqttReceives(ctx context.Context, size int, topic, within string) error {
	timeout, err := duration(within)
	if err != nil {
		return err
	}
	broker, err := service[*infra.MQTTBroker](s.sc, infra.MQTTBrokerService)
	if err != nil {
		return err
	}
	return broker.WaitForPublish(ctx, timeout, topic, size)
}

func (s *steps) kafkaBrokerIsSetUp() error {
	s.sc.Add(infra.KafkaBrokerService, infra.NewKafkaBroker(s.sc.Env))
	return nil
}

func (s *steps) kafkaBroker() (*infra.KafkaBroker, error) {
	return service[*infra.KafkaBroker](s.sc, infra.KafkaBrokerService)
}

// processorUsesKafkaBroker sets the broker list under the property name of
// the consumer or the producer processor.
func (s *steps) processorUsesKafkaBroker(name string) error {
	broker, err := s.kafkaBroker()
	if err != nil {
		return err
	}
	p, err := s.processor("", name)
	if err != nil {
		return err
	}
	key := "Known Brokers"
	if strings.HasPrefix(p.ClassName, "Consume") {
		key = "Kafka Brokers"
	}
	p.SetProperty(key, broker.BootstrapServers())
	return nil
}

func (s *steps) kafkaTopicIsCreated(ctx context.Context, topic string) error {
	broker, err := s.kafkaBroker()
	if err != nil {
		return err
	}
	return broker.CreateTopic(ctx, topic)
}

func (s *steps) kafkaMessageIsPublished(ctx context.Context, content, topic string) error {
	broker, err := s.kafkaBroker()
	if err != nil {
		return err
	}
	return broker.Produce(ctx, topic, content)
}

func (s *steps) kafkaHasMessage(ctx context.Context, content, topic, within string) error {
	timeout, err := duration(within)
	if err != nil {
		return err
	}
	broker, err := s.kafkaBroker()
	if err != nil {
		return err
	}
	messages, err := broker.Consume(ctx, topic, timeout)
	if err != nil {
		return err
	}
	for _, line := range strings.Split(messages, "\n") {
		if strings.TrimSpace(line) == content {
			return nil
		}
	}
	return fmt.Errorf("no message %q on topic %s", content, topic)
}

func (s *steps) syslogClientIsSetUp(protocol string) error {
	protocol = strings.ToLower(protocol)
	client, err := infra.NewSyslogClient(s.sc.Env, protocol, s.minifi("").Name())
	if err != nil {
		return err
	}
	s.sc.Add("syslog-"+protocol, client)
	return nil
}

func (s *steps) tcpClientIsSetUp() error {
	s.sc.Add(infra.TCPClientService, infra.NewTCPClient(s.sc.Env, s.minifi("").Name()))
	return nil
}
