package config

import "time"

// ElasticsearchConfig содержит конфигурацию для подключения к Elasticsearch
type ElasticsearchConfig struct {
	Enabled    bool          `env:"ELASTICSEARCH_ENABLED" env-default:"false"`
	URL        string        `env:"ELASTICSEARCH_URL" env-default:"http://localhost:9200"`
	Index      string        `env:"ELASTICSEARCH_INDEX" env-default:"events"`
	Username   string        `env:"ELASTICSEARCH_USERNAME"`
	Password   string        `env:"ELASTICSEARCH_PASSWORD"`
	MaxRetries int           `env:"ELASTICSEARCH_MAX_RETRIES" env-default:"3"`
	Timeout    time.Duration `env:"ELASTICSEARCH_TIMEOUT" env-default:"30s"`
}
