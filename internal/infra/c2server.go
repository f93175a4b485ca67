package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kubev2v/flowharness/internal/container"
	"github.com/kubev2v/flowharness/internal/flow"
)

const (
	c2ServerImage       = "apache/nifi-minifi-c2:1.28.1"
	c2ServerHome        = "/opt/minifi-c2/minifi-c2-current"
	c2ServerCertDir     = "/tmp/resources"
	c2ServerStartupWait = 60 * time.Second
)

var c2ServerStartedLogs = []string{"Server Started", "Started Server@"}

// MinifiC2ServerContainer runs the reference C2 server. It serves Flow to
// agents of class C2AgentClass and logs their heartbeats.
type MinifiC2ServerContainer struct {
	*container.Container

	Flow *flow.Definition
	SSL  bool

	env      *Env
	prepared bool
}

func NewMinifiC2ServerContainer(env *Env, ssl bool) *MinifiC2ServerContainer {
	c := container.New(env.Runtime, env.ServiceName(C2ServerService), c2ServerImage, env.Network)
	return &MinifiC2ServerContainer{
		Container: c,
		Flow:      flow.NewDefinition(flow.DefaultMinifiFlowName),
		SSL:       ssl,
		env:       env,
	}
}

// BaseURL is what agents put into their C2 properties.
func (s *MinifiC2ServerContainer) BaseURL() string {
	scheme := "http"
	if s.SSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, s.Name(), C2ServerPort)
}

// Properties renders conf/c2.properties.
func (s *MinifiC2ServerContainer) Properties() string {
	props := newPropertySet()
	props.Set("minifi.c2.server.port", fmt.Sprint(C2ServerPort))
	props.Set("minifi.c2.server.secure", fmt.Sprint(s.SSL))
	if s.SSL {
		props.Set("minifi.c2.server.keystore", c2ServerCertDir+"/keystore.jks")
		props.Set("minifi.c2.server.keystoreType", "JKS")
		props.Set("minifi.c2.server.keystorePasswd", nifiPassword)
		props.Set("minifi.c2.server.keyPasswd", nifiPassword)
		props.Set("minifi.c2.server.truststore", c2ServerCertDir+"/truststore.jks")
		props.Set("minifi.c2.server.truststoreType", "JKS")
		props.Set("minifi.c2.server.truststorePasswd", nifiPassword)
	}
	return props.Render()
}

func (s *MinifiC2ServerContainer) prepare() error {
	config, err := flow.MinifiYAMLSerializer{}.Serialize(s.Flow)
	if err != nil {
		return err
	}
	s.Files = append(s.Files,
		container.File{Path: c2ServerHome + "/conf", Name: "c2.properties", Content: []byte(s.Properties())},
		container.File{Path: c2ServerHome + "/files/" + C2AgentClass, Name: "config.text.yml.v1", Content: config},
	)
	if !s.SSL {
		return nil
	}

	kp, err := s.env.ServerCert(s.Name())
	if err != nil {
		return err
	}
	s.Files = append(s.Files,
		container.File{Path: c2ServerCertDir, Name: "root_ca.crt", Content: s.env.RootCA.CertPEM()},
		container.File{Path: c2ServerCertDir, Name: "c2_server.crt", Content: kp.CertPEM()},
		container.File{Path: c2ServerCertDir, Name: "c2_server.key", Content: kp.KeyPEM()},
		container.File{Path: "/scripts", Name: "convert_cert_to_jks.sh", Content: []byte(convertCertScript), Mode: 0o755},
	)
	s.Entrypoint = []string{"/bin/sh", "-c", fmt.Sprintf(
		"/scripts/convert_cert_to_jks.sh %[1]s %[1]s/c2_server.key %[1]s/c2_server.crt %[1]s/root_ca.crt && exec %[2]s/bin/c2.sh",
		c2ServerCertDir, c2ServerHome)}
	return nil
}

func (s *MinifiC2ServerContainer) Deploy(ctx context.Context) error {
	if !s.prepared {
		if err := s.prepare(); err != nil {
			return err
		}
		s.prepared = true
	}
	if err := s.Container.Deploy(ctx); err != nil {
		return err
	}
	return s.WaitForLogMatch(ctx, "server started", c2ServerStartupWait, func(logs string) bool {
		for _, l := range c2ServerStartedLogs {
			if strings.Contains(logs, l) {
				return true
			}
		}
		return false
	})
}
