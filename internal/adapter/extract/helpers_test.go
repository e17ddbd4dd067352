package extract

import (
	"time"

	"websearch/internal/infra/config"
)

func defaultTestConfig() config.ExtractConfig {
	return config.ExtractConfig{
		Timeout:           5 * time.Second,
		MaxBodySize:       1 << 20,
		MaxContentChars:   2000,
		MinContentChars:   50,
		Concurrency:       2,
		RequestsPerSecond: 100,
		Burst:             10,
		UserAgent:         "websearch-test",
	}
}
