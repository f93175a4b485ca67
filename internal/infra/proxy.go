package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kubev2v/flowharness/internal/container"
	"github.com/kubev2v/flowharness/internal/images"
)

const (
	HTTPProxyService = "http-proxy"

	proxyStartedLog    = "Accepting HTTP Socket connections at"
	proxyStartupWait   = 5 * time.Second
	proxyCertDir       = "/etc/squid/certs"
	proxyAccessLogPath = "/var/log/squid/access.log"
)

// HTTPProxy is an authenticating squid proxy with a plain and a TLS port.
type HTTPProxy struct {
	*container.Container

	env      *Env
	prepared bool
}

func NewHTTPProxy(env *Env) *HTTPProxy {
	return &HTTPProxy{
		Container: container.New(env.Runtime, env.ServiceName(HTTPProxyService), "", env.Network),
		env:       env,
	}
}

// Address is host:port of the plain proxy port.
func (p *HTTPProxy) Address() string {
	return fmt.Sprintf("%s:%d", p.Name(), images.ProxyPort)
}

// SSLAddress is host:port of the TLS proxy port.
func (p *HTTPProxy) SSLAddress() string {
	return fmt.Sprintf("%s:%d", p.Name(), images.ProxySSLPort)
}

func (p *HTTPProxy) Credentials() (string, string) {
	return images.ProxyUser, images.ProxyPassword
}

func (p *HTTPProxy) Deploy(ctx context.Context) error {
	if !p.prepared {
		image, err := p.env.Images.GetImage(ctx, images.EngineHTTPProxy)
		if err != nil {
			return err
		}
		p.SetImage(image)

		kp, err := p.env.ServerCert(p.Name())
		if err != nil {
			return err
		}
		p.Files = append(p.Files,
			container.File{Path: proxyCertDir, Name: "squid-cert.pem", Content: kp.CertPEM(), Mode: 0o666},
			container.File{Path: proxyCertDir, Name: "squid-key.pem", Content: kp.KeyPEM(), Mode: 0o666},
		)
		p.prepared = true
	}
	if err := p.Container.Deploy(ctx); err != nil {
		return err
	}
	return p.WaitForLog(ctx, proxyStartupWait, proxyStartedLog)
}

// CheckAccess reports whether url went through the proxy. Denied requests are
// fine as long as an authenticated retry of each got through.
func (p *HTTPProxy) CheckAccess(ctx context.Context, url string) (bool, error) {
	res, err := p.Exec(ctx, "cat", proxyAccessLogPath)
	if err != nil {
		return false, err
	}
	if res.ExitCode != 0 {
		return false, nil
	}
	return accessLogShows(res.Output, url), nil
}

func accessLogShows(log, url string) bool {
	if !strings.Contains(strings.ToLower(log), strings.ToLower(url)) {
		return false
	}
	denied := strings.Count(log, "TCP_DENIED")
	missed := strings.Count(log, "TCP_MISS")
	if denied != 0 {
		return missed >= denied
	}
	return missed > 0
}
