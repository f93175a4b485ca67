package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/kubev2v/flowharness/internal/container"
)

const (
	SyslogClientService = "syslog-client"
	TCPClientService    = "tcp-client"

	SyslogPort    = 514
	TCPClientPort = 10254
	TCPMessage    = "test_tcp_message"

	clientImage       = "ubuntu:24.04"
	alpineImage       = "alpine:3.20"
	clientStartedLog  = "client started"
	clientStartupWait = 30 * time.Second
)

// SyslogClient sends a sample message to the agent every second over tcp or udp.
type SyslogClient struct {
	*container.Container

	Protocol string
}

// NewSyslogClient targets the syslog listener of the named agent.
func NewSyslogClient(env *Env, protocol, target string) (*SyslogClient, error) {
	if protocol != "tcp" && protocol != "udp" {
		return nil, fmt.Errorf("unsupported syslog protocol %q", protocol)
	}
	c := container.New(env.Runtime, env.ServiceName(SyslogClientService+"-"+protocol), clientImage, env.Network)
	c.Entrypoint = []string{"/bin/bash", "-c", fmt.Sprintf(
		"echo syslog %s %s; for i in {1..60}; do logger --%s -n %s -P %d sample_log; sleep 1; done",
		protocol, clientStartedLog, protocol, target, SyslogPort)}
	return &SyslogClient{Container: c, Protocol: protocol}, nil
}

func (s *SyslogClient) Deploy(ctx context.Context) error {
	if err := s.Container.Deploy(ctx); err != nil {
		return err
	}
	return s.WaitForLog(ctx, clientStartupWait, clientStartedLog)
}

// TCPClient writes a fixed line to the agent's ListenTCP port every second.
type TCPClient struct {
	*container.Container
}

func NewTCPClient(env *Env, target string) *TCPClient {
	c := container.New(env.Runtime, env.ServiceName(TCPClientService), alpineImage, env.Network)
	c.Entrypoint = []string{"/bin/sh", "-c", fmt.Sprintf(
		"apk add --no-cache netcat-openbsd && echo tcp %s; while true; do echo %s | nc -w 1 %s %d; sleep 1; done",
		clientStartedLog, TCPMessage, target, TCPClientPort)}
	return &TCPClient{Container: c}
}

func (t *TCPClient) Deploy(ctx context.Context) error {
	if err := t.Container.Deploy(ctx); err != nil {
		return err
	}
	return t.WaitForLog(ctx, clientStartupWait, clientStartedLog)
}
