package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"eventcart/internal/config"
	"eventcart/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ElasticsearchClient представляет клиент для работы с Elasticsearch
type ElasticsearchClient struct {
	client *elasticsearch.Client
	config config.ElasticsearchConfig
}

// eventDocument - то, что хранится в индексе; остатки мест не индексируются
type eventDocument struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	City                 string           `json:"city"`
	Address              string           `json:"address"`
	EventDate            time.Time        `json:"event_date"`
	EventType            models.EventType `json:"event_type"`
	AvailableForPurchase bool             `json:"available_for_purchase"`
	Localities           []string         `json:"localities"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// NewElasticsearchClient создает новый клиент Elasticsearch
func NewElasticsearchClient(cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{cfg.URL},
		Username:      cfg.Username,
		Password:      cfg.Password,
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	client := &ElasticsearchClient{
		client: es,
		config: cfg,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure index exists: %w", err)
	}

	return client, nil
}

// do выполняет запрос и, если out != nil, декодирует тело ответа.
// Статусы из allow не считаются ошибкой.
func (c *ElasticsearchClient) do(ctx context.Context, op string, req esapi.Request, out interface{}, allow ...int) (int, error) {
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return 0, fmt.Errorf("%s failed: %w", op, err)
	}
	defer res.Body.Close()

	if res.IsError() && !slices.Contains(allow, res.StatusCode) {
		return res.StatusCode, fmt.Errorf("%s error: %s", op, res.String())
	}
	if out != nil && !res.IsError() {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return res.StatusCode, fmt.Errorf("failed to decode %s response: %w", op, err)
		}
	}
	return res.StatusCode, nil
}

func jsonBody(v interface{}) (*bytes.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}

func (c *ElasticsearchClient) ensureIndex(ctx context.Context) error {
	status, err := c.do(ctx, "index exists", esapi.IndicesExistsRequest{Index: []string{c.config.Index}}, nil, http.StatusNotFound)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		slog.Info("Elasticsearch index already exists", "index", c.config.Index)
		return nil
	}

	body, err := jsonBody(indexMapping())
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}
	if _, err := c.do(ctx, "create index", esapi.IndicesCreateRequest{Index: c.config.Index, Body: body}, nil); err != nil {
		return err
	}

	slog.Info("Created Elasticsearch index", "index", c.config.Index)
	return nil
}

func indexMapping() map[string]interface{} {
	keyword := map[string]interface{}{
		"keyword": map[string]interface{}{
			"type":         "keyword",
			"ignore_above": 256,
		},
	}

	return map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"id":                     map[string]interface{}{"type": "keyword"},
				"name":                   map[string]interface{}{"type": "text", "fields": keyword},
				"city":                   map[string]interface{}{"type": "text", "fields": keyword},
				"address":                map[string]interface{}{"type": "text"},
				"event_type":             map[string]interface{}{"type": "keyword"},
				"available_for_purchase": map[string]interface{}{"type": "boolean"},
				"localities":             map[string]interface{}{"type": "keyword"},
				"event_date": map[string]interface{}{
					"type":   "date",
					"format": "strict_date_optional_time||epoch_millis",
				},
				"updated_at": map[string]interface{}{"type": "date"},
			},
		},
	}
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID string `json:"_id"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search returns the ids of matching events in display order together with
// the total number of matches.
func (c *ElasticsearchClient) Search(ctx context.Context, filter models.EventFilter) ([]string, int64, error) {
	body, err := jsonBody(BuildSearchRequest(filter))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal search query: %w", err)
	}

	var resp searchResponse
	if _, err := c.do(ctx, "search", esapi.SearchRequest{Index: []string{c.config.Index}, Body: body}, &resp); err != nil {
		return nil, 0, err
	}

	ids := make([]string, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, resp.Hits.Total.Value, nil
}

// BuildSearchRequest строит тело запроса: все условия фильтра через bool.filter,
// сортировка по дате, затем по имени.
func BuildSearchRequest(filter models.EventFilter) map[string]interface{} {
	filters := []map[string]interface{}{}

	if filter.Name != "" {
		filters = append(filters, containsQuery("name.keyword", filter.Name))
	}
	if filter.City != "" {
		filters = append(filters, containsQuery("city.keyword", filter.City))
	}

	if filter.From != nil || filter.To != nil {
		dateRange := map[string]interface{}{}
		if filter.From != nil {
			dateRange["gte"] = filter.From.UTC().Format(time.RFC3339)
		}
		if filter.To != nil {
			dateRange["lte"] = filter.To.UTC().Format(time.RFC3339)
		}
		filters = append(filters, map[string]interface{}{
			"range": map[string]interface{}{"event_date": dateRange},
		})
	}

	if filter.Type != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"event_type": string(filter.Type)},
		})
	}

	query := map[string]interface{}{
		"match_all": map[string]interface{}{},
	}
	if len(filters) > 0 {
		query = map[string]interface{}{
			"bool": map[string]interface{}{"filter": filters},
		}
	}

	return map[string]interface{}{
		"query":            query,
		"_source":          false,
		"track_total_hits": true,
		"from":             filter.Offset(),
		"size":             filter.Size,
		"sort": []map[string]interface{}{
			{"event_date": map[string]interface{}{"order": "asc"}},
			{"name.keyword": map[string]interface{}{"order": "asc"}},
		},
	}
}

// containsQuery - регистронезависимый поиск подстроки
func containsQuery(field, value string) map[string]interface{} {
	return map[string]interface{}{
		"wildcard": map[string]interface{}{
			field: map[string]interface{}{
				"value":            "*" + escapeWildcard(value) + "*",
				"case_insensitive": true,
			},
		},
	}
}

func escapeWildcard(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)
	return r.Replace(s)
}

func toDocument(event *models.Event) eventDocument {
	localities := make([]string, 0, len(event.Localities))
	for _, l := range event.Localities {
		localities = append(localities, l.Name)
	}
	return eventDocument{
		ID:                   event.ID,
		Name:                 event.Name,
		City:                 event.City,
		Address:              event.Address,
		EventDate:            event.EventDate.UTC(),
		EventType:            event.Type,
		AvailableForPurchase: event.AvailableForPurchase,
		Localities:           localities,
		UpdatedAt:            event.UpdatedAt.UTC(),
	}
}

// IndexEvent индексирует событие, заменяя прежний документ
func (c *ElasticsearchClient) IndexEvent(ctx context.Context, event *models.Event) error {
	body, err := jsonBody(toDocument(event))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = c.do(ctx, "index event", esapi.IndexRequest{
		Index:      c.config.Index,
		DocumentID: event.ID,
		Body:       body,
		Refresh:    "wait_for",
	}, nil)
	return err
}

// DeleteEvent удаляет событие; отсутствующий документ не ошибка
func (c *ElasticsearchClient) DeleteEvent(ctx context.Context, id string) error {
	_, err := c.do(ctx, "delete event", esapi.DeleteRequest{
		Index:      c.config.Index,
		DocumentID: id,
		Refresh:    "wait_for",
	}, nil, http.StatusNotFound)
	return err
}

func (c *ElasticsearchClient) Count(ctx context.Context) (int64, error) {
	var resp struct {
		Count int64 `json:"count"`
	}
	if _, err := c.do(ctx, "count", esapi.CountRequest{Index: []string{c.config.Index}}, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// HealthCheck ждёт статуса кластера не хуже yellow
func (c *ElasticsearchClient) HealthCheck(ctx context.Context) error {
	_, err := c.do(ctx, "cluster health", esapi.ClusterHealthRequest{
		WaitForStatus: "yellow",
		Timeout:       10 * time.Second,
	}, nil)
	return err
}
