// Package payloadschema validates JSON crossing the process boundary: ingested article
// items and external batch scorer responses.
package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed article_item.schema.json
var articleItemSchemaJSON string

//go:embed scorer_response.schema.json
var scorerResponseSchemaJSON string

const (
	articleItemSchemaName    = "article_item.schema.json"
	scorerResponseSchemaName = "scorer_response.schema.json"
)

// ArticleItem is one validated ingest payload.
type ArticleItem struct {
	Provider     string  `json:"provider"`
	SourceID     string  `json:"source_id"`
	SourceName   *string `json:"source_name,omitempty"`
	URL          *string `json:"url,omitempty"`
	Title        string  `json:"title"`
	Body         *string `json:"body,omitempty"`
	ShortSummary *string `json:"short_summary,omitempty"`
	AISummary    *string `json:"ai_summary,omitempty"`
	Category     string  `json:"category"`
	ImageURL     *string `json:"image_url,omitempty"`
	PublishedAt  *string `json:"published_at,omitempty"`
}

// PublishedTime parses PublishedAt; nil when absent.
func (i *ArticleItem) PublishedTime() (*time.Time, error) {
	if i == nil || i.PublishedAt == nil {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(*i.PublishedAt))
	if err != nil {
		return nil, err
	}
	utc := ts.UTC()
	return &utc, nil
}

type compiled struct {
	once   sync.Once
	schema *jsonschema.Schema
	err    error
}

var schemas = map[string]*compiled{
	articleItemSchemaName:    {},
	scorerResponseSchemaName: {},
}

var schemaSources = map[string]string{
	articleItemSchemaName:    articleItemSchemaJSON,
	scorerResponseSchemaName: scorerResponseSchemaJSON,
}

// ValidateArticleItem validates one ingest item and returns it decoded.
func ValidateArticleItem(payload json.RawMessage) (*ArticleItem, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}
	if err := validate(articleItemSchemaName, value); err != nil {
		return nil, err
	}

	var item ArticleItem
	if err := remarshal(value, &item); err != nil {
		return nil, err
	}
	if err := validateArticleSemantics(&item); err != nil {
		return nil, err
	}
	return &item, nil
}

// SplitArticleItems splits a JSON array of items into raw elements. A single object is
// accepted as a one-element batch.
func SplitArticleItems(payload []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}
	if trimmed[0] == '{' {
		return []json.RawMessage{json.RawMessage(trimmed)}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("decode item array: %w", err)
	}
	return items, nil
}

// ValidateScorerResponse validates a scorer response and returns the normalized array.
// Both a bare array and an object carrying an "items" array are accepted.
func ValidateScorerResponse(payload []byte) (json.RawMessage, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode scorer response: %w", err)
	}

	if object, ok := value.(map[string]any); ok {
		items, exists := object["items"]
		if !exists {
			return nil, fmt.Errorf("scorer response object has no items array")
		}
		value = items
	}

	if err := validate(scorerResponseSchemaName, value); err != nil {
		return nil, err
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize scorer response: %w", err)
	}
	return normalized, nil
}

func validate(name string, value any) error {
	schema, err := loadSchema(name)
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

func loadSchema(name string) (*jsonschema.Schema, error) {
	entry, ok := schemas[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema %s", name)
	}

	entry.once.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource(name, strings.NewReader(schemaSources[name])); err != nil {
			entry.err = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile(name)
		if err != nil {
			entry.err = fmt.Errorf("compile schema: %w", err)
			return
		}
		entry.schema = schema
	})

	if entry.err != nil {
		return nil, entry.err
	}
	if entry.schema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return entry.schema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func remarshal(value any, into any) error {
	normalized, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("normalize payload JSON: %w", err)
	}
	if err := json.Unmarshal(normalized, into); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}

func validateArticleSemantics(item *ArticleItem) error {
	if strings.TrimSpace(item.Provider) == "" {
		return fmt.Errorf("provider must not be empty")
	}
	if strings.TrimSpace(item.SourceID) == "" {
		return fmt.Errorf("source_id must not be empty")
	}
	if strings.TrimSpace(item.Title) == "" {
		return fmt.Errorf("title must not be empty")
	}
	if strings.TrimSpace(item.Category) == "" {
		return fmt.Errorf("category must not be empty")
	}
	if item.URL != nil {
		if err := validateURI("url", *item.URL); err != nil {
			return err
		}
	}
	if item.ImageURL != nil {
		if err := validateURI("image_url", *item.ImageURL); err != nil {
			return err
		}
	}
	if _, err := item.PublishedTime(); err != nil {
		return fmt.Errorf("published_at must be RFC3339: %w", err)
	}
	return nil
}

func validateURI(fieldName, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("%s must not be empty", fieldName)
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return fmt.Errorf("%s is not a valid URI: %w", fieldName, err)
	}
	return nil
}
