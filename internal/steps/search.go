package steps

import (
	"context"

	"github.com/cucumber/godog"

	"github.com/kubev2v/flowharness/internal/checkers"
	"github.com/kubev2v/flowharness/internal/flow"
	"github.com/kubev2v/flowharness/internal/infra"
)

const (
	searchCredentialsService = "ElasticsearchCredentialsControllerService"
	searchSSLContextService  = "SSLContextService"
)

func (s *steps) registerSearch(ctx *godog.ScenarioContext) {
	ctx.Step(`^an? (Elasticsearch|Opensearch) server is set up$`, s.searchServerIsSetUp)
	ctx.Step(`^a document with the id "([^"]*)" and the "([^"]*)" field set to "([^"]*)" is indexed in "([^"]*)" on the (Elasticsearch|Opensearch) server$`, s.documentIsIndexed)
	ctx.Step(`^the ([^\s"]+) processor is set up to use the (Elasticsearch|Opensearch) server( with an API key)?$`, s.processorUsesSearchServer)
	ctx.Step(`^the (Elasticsearch|Opensearch) server has a document with the id "([^"]*)" in "([^"]*)" with the "([^"]*)" field set to "([^"]*)" in less than (.+)$`, s.searchHasDocument)
	ctx.Step(`^the "([^"]*)" index of the (Elasticsearch|Opensearch) server becomes empty in less than (.+)$`, s.searchIndexIsEmpty)
}

func searchServiceName(engine string) string {
	if engine == "Elasticsearch" {
		return infra.ElasticsearchService
	}
	return infra.OpensearchService
}

func (s *steps) searchEngine(engine string) (infra.SearchEngine, error) {
	svc, err := s.sc.Get(searchServiceName(engine))
	if err != nil {
		return nil, err
	}
	return svc.(infra.SearchEngine), nil
}

func (s *steps) searchServerIsSetUp(engine string) error {
	if engine == "Elasticsearch" {
		s.sc.Add(infra.ElasticsearchService, infra.NewElasticsearch(s.sc.Env))
		return nil
	}
	s.sc.Add(infra.OpensearchService, infra.NewOpensearch(s.sc.Env))
	return nil
}

func (s *steps) documentIsIndexed(ctx context.Context, id, field, value, index, engine string) error {
	e, err := s.searchEngine(engine)
	if err != nil {
		return err
	}
	return infra.IndexDocument(ctx, e, index, id, map[string]string{field: value})
}

// processorUsesSearchServer points the processor at the server. Elasticsearch
// also gets credentials and an SSL context trusting the scenario root CA; the
// API key is created right away, so the server must already be running.
func (s *steps) processorUsesSearchServer(ctx context.Context, name, engine, apiKey string) error {
	agent := s.minifi("")
	p, err := agent.Flow.GetProcessor(name)
	if err != nil {
		return err
	}

	if engine == "Opensearch" {
		opensearch, err := service[*infra.Opensearch](s.sc, infra.OpensearchService)
		if err != nil {
			return err
		}
		p.SetProperty("Hosts", opensearch.URL())
		return nil
	}

	es, err := service[*infra.Elasticsearch](s.sc, infra.ElasticsearchService)
	if err != nil {
		return err
	}
	credentials := agent.Flow.AddControllerService(flow.NewControllerService(searchCredentialsService, ""))
	if apiKey != "" {
		key, err := es.CreateAPIKey(ctx)
		if err != nil {
			return err
		}
		credentials.SetProperty("API Key", key)
	} else {
		user, password := es.Credentials()
		credentials.SetProperty("Username", user).SetProperty("Password", password)
	}

	agent.Options.TrustRootCA = true
	agent.Flow.AddControllerService(flow.NewControllerService(searchSSLContextService, "")).
		SetProperty("CA Certificate", agent.RootCAPath())

	p.SetProperty("Hosts", es.URL()).
		SetProperty("Elasticsearch Credentials Provider Service", searchCredentialsService).
		SetProperty("SSL Context Service", searchSSLContextService)
	return nil
}

func (s *steps) searchHasDocument(ctx context.Context, engine, id, index, field, value, within string) error {
	timeout, err := duration(within)
	if err != nil {
		return err
	}
	e, err := s.searchEngine(engine)
	if err != nil {
		return err
	}
	return checkers.NewSearchChecker(e).WaitForDocument(ctx, index, id, field, value, timeout)
}

func (s *steps) searchIndexIsEmpty(ctx context.Context, index, engine, within string) error {
	timeout, err := duration(within)
	if err != nil {
		return err
	}
	e, err := s.searchEngine(engine)
	if err != nil {
		return err
	}
	return checkers.NewSearchChecker(e).WaitForEmpty(ctx, index, timeout)
}
