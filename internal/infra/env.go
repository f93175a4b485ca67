// Package infra holds the concrete scenario services: the agent under test,
// NiFi, proxies, brokers, storage emulators and search engines. Every service
// embeds container.Container and is named <service>-<scenario id>.
package infra

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/kubev2v/flowharness/internal/config"
	"github.com/kubev2v/flowharness/internal/container"
	"github.com/kubev2v/flowharness/internal/images"
	"github.com/kubev2v/flowharness/pkg/certificates"
)

// Env is the part of a scenario every service needs.
type Env struct {
	ScenarioID  string
	Network     string
	Runtime     container.Runtime
	Images      *images.Store
	RootCA      *certificates.KeyPair
	ResourceDir string
	Agent       config.Agent
	NiFi        config.NiFi

	mu    sync.Mutex
	certs map[string]*certificates.KeyPair
}

// ServiceName is the container name of a service in this scenario.
func (e *Env) ServiceName(service string) string {
	return service + "-" + e.ScenarioID
}

// OneOffName names a throwaway helper container of this scenario.
func (e *Env) OneOffName(service string) string {
	return e.ServiceName(service) + "-" + uuid.NewString()[:8]
}

// Resource returns the host path of a file in the resource directory.
func (e *Env) Resource(name string) string {
	return filepath.Join(e.ResourceDir, name)
}

// ServerCert issues, once per common name, a server certificate signed by the scenario root CA.
func (e *Env) ServerCert(cn string) (*certificates.KeyPair, error) {
	return e.cert("server:"+cn, func() (*certificates.KeyPair, error) {
		return certificates.MakeServerCert(cn, e.RootCA)
	})
}

// ClientCert issues, once per common name, a client certificate signed by the scenario root CA.
func (e *Env) ClientCert(cn string) (*certificates.KeyPair, error) {
	return e.cert("client:"+cn, func() (*certificates.KeyPair, error) {
		return certificates.MakeClientCert(cn, e.RootCA)
	})
}

func (e *Env) cert(key string, issue func() (*certificates.KeyPair, error)) (*certificates.KeyPair, error) {
	if e.RootCA == nil {
		return nil, fmt.Errorf("scenario %s has no root CA", e.ScenarioID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if kp, ok := e.certs[key]; ok {
		return kp, nil
	}
	kp, err := issue()
	if err != nil {
		return nil, fmt.Errorf("failed to issue certificate %s: %w", key, err)
	}
	if e.certs == nil {
		e.certs = make(map[string]*certificates.KeyPair)
	}
	e.certs[key] = kp
	return kp, nil
}
