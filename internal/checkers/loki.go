package checkers

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kubev2v/flowharness/pkg/wait"
)

const lokiQuery = `{job="minifi"}`

type lokiResponse struct {
	Data struct {
		Result []struct {
			Values [][]string `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

type LokiChecker struct {
	baseURL string
	client  *http.Client
	log     *zap.SugaredLogger
}

// NewLokiChecker queries the Loki API at baseURL, over TLS when tlsConfig is set.
func NewLokiChecker(baseURL string, tlsConfig *tls.Config) *LokiChecker {
	client := &http.Client{Timeout: 10 * time.Second}
	if tlsConfig != nil {
		client.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	}
	return &LokiChecker{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		log:     zap.S().Named("checkers").With("checker", "loki"),
	}
}

// VerifyLogLines reports whether every line appears in the log stream of the agent.
func (l *LokiChecker) VerifyLogLines(ctx context.Context, lines []string) (bool, error) {
	u := l.baseURL + "/loki/api/v1/query?query=" + url.QueryEscape(lokiQuery)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to query loki: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read loki response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		l.log.Debugw("unexpected loki status", "status", resp.StatusCode, "body", string(body))
		return false, nil
	}

	var parsed lokiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false, fmt.Errorf("failed to parse loki response: %w", err)
	}
	if len(parsed.Data.Result) == 0 {
		return false, nil
	}

	var logs strings.Builder
	for _, v := range parsed.Data.Result[0].Values {
		logs.WriteString(strings.Join(v, " "))
		logs.WriteByte('\n')
	}
	for _, line := range lines {
		if !strings.Contains(logs.String(), line) {
			return false, nil
		}
	}
	return true, nil
}

func (l *LokiChecker) WaitForLogLines(ctx context.Context, lines []string, timeout time.Duration) error {
	return wait.ForCondition(ctx, timeout, func(ctx context.Context) (bool, error) {
		return l.VerifyLogLines(ctx, lines)
	}, wait.WithName(fmt.Sprintf("loki has lines %q", lines)))
}
