// Package websearch answers a user query from live web results: it
// enumerates and extracts pages, memorizes them in the "search" collection
// and asks the LLM for an answer annotated with citations.
package websearch

import (
	"fmt"

	"websearch/internal/domain"
)

// Settings are the user-facing plugin settings.
type Settings struct {
	MaxResults int    `json:"search_max_results"`
	Language   string `json:"language"`
}

// Settings bounds.
const (
	DefaultMaxResults = 3
	MinMaxResults     = 1
	MaxMaxResults     = 10
	DefaultLanguage   = "en"
)

// DefaultSettings returns the settings used when the host provides none.
func DefaultSettings() Settings {
	return Settings{MaxResults: DefaultMaxResults, Language: DefaultLanguage}
}

// Validate checks the settings bounds.
func (s Settings) Validate() error {
	if s.MaxResults < MinMaxResults || s.MaxResults > MaxMaxResults {
		return domain.NewSubSystemError("plugin", "Settings.Validate", domain.ErrInvalidInput,
			fmt.Sprintf("search_max_results must be in [%d, %d], got %d", MinMaxResults, MaxMaxResults, s.MaxResults))
	}
	if _, ok := catalog[s.Language]; !ok {
		return domain.NewSubSystemError("plugin", "Settings.Validate", domain.ErrInvalidInput,
			fmt.Sprintf("language %q is not supported", s.Language))
	}
	return nil
}
