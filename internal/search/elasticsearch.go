package search

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"example.com/fleetops/services/payroll/config"
	"example.com/fleetops/services/payroll/internal/models"
)

// ElasticClient indexes paid settlements for reporting and search
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client: client,
		config: cfg,
	}, nil
}

// IndexSettlement indexes a paid settlement with its line breakdown.
// Indexing is best-effort reporting: callers log failures and move on, the
// financial write has already committed.
func (c *ElasticClient) IndexSettlement(ctx context.Context, settlement *models.Settlement, payee *models.Payee, lines []models.LedgerLine) error {
	log.Info().Str("settlement_id", settlement.ID.String()).Msg("indexing settlement")

	total := decimal.Zero
	lineDocs := make([]map[string]interface{}, 0, len(lines))
	for _, line := range lines {
		total = total.Add(line.Amount)
		doc := map[string]interface{}{
			"id":          line.ID.String(),
			"category":    string(line.Category),
			"description": line.Description,
			"amount":      line.Amount,
		}
		if line.LoadID != nil {
			doc["load_id"] = line.LoadID.String()
		}
		lineDocs = append(lineDocs, doc)
	}

	settlementDoc := map[string]interface{}{
		"id":           settlement.ID.String(),
		"carrier_id":   settlement.CarrierID.String(),
		"payee_id":     settlement.PayeeID.String(),
		"payee_name":   payee.Name,
		"payee_kind":   string(payee.Kind),
		"status":       string(settlement.Status),
		"period_start": settlement.PeriodStart,
		"period_end":   settlement.PeriodEnd,
		"paid_at":      settlement.PaidAt,
		"total":        total,
		"line_count":   len(lines),
		"lines":        lineDocs,
	}

	docJson, err := json.Marshal(settlementDoc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal settlement document")
	}

	indexName := config.FormatIndex(c.config, c.config.Index)
	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: settlement.ID.String(),
		Body:       bytes.NewReader(docJson),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return errors.Errorf("Elasticsearch index error: %v", e)
	}

	log.Info().Str("settlement_id", settlement.ID.String()).Msg("settlement indexed successfully")
	return nil
}

// SearchSettlements searches indexed settlements with the given criteria
func (c *ElasticClient) SearchSettlements(ctx context.Context, query map[string]interface{}) ([]map[string]interface{}, error) {
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search query")
	}

	indexName := config.FormatIndex(c.config, c.config.Index)
	req := esapi.SearchRequest{
		Index: []string{indexName},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Elasticsearch search request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return nil, errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return nil, errors.Errorf("Elasticsearch search error: %v", e)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to parse Elasticsearch search response")
	}

	hits, ok := result["hits"].(map[string]interface{})
	if !ok {
		return nil, errors.New("unexpected search result format")
	}

	hitsArray, ok := hits["hits"].([]interface{})
	if !ok {
		return nil, errors.New("unexpected hits format")
	}

	var docs []map[string]interface{}
	for _, hit := range hitsArray {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}

		source, ok := hitMap["_source"].(map[string]interface{})
		if !ok {
			continue
		}

		docs = append(docs, source)
	}

	return docs, nil
}
