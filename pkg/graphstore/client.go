// Package graphstore is the gateway to the external GraphQL graph store.
// Every write is retried with exponential backoff on transient failures and
// is only treated as committed once the response carries the expected
// acknowledgment payload; an error-free response is not enough.
package graphstore

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/tradecraft-foods/reconcile-cli/internal/model"
	"github.com/tradecraft-foods/reconcile-cli/internal/resilience"
)

// EntitySpec describes a new entity to create in the graph.
type EntitySpec struct {
	Type    model.EntityType `json:"type"`
	Name    string           `json:"name"`
	Country string           `json:"country,omitempty"`
	Aliases []string         `json:"aliases,omitempty"`
}

// Client is the graph store gateway consumed by the ingestion pipeline and
// the review queue.
type Client interface {
	// QueryEntities fetches the full candidate pool for one entity type.
	QueryEntities(ctx context.Context, typ model.EntityType) ([]model.Entity, error)

	// CommitEntity creates a new entity and returns its graph ID.
	CommitEntity(ctx context.Context, spec EntitySpec) (string, error)

	// CommitMatch records the candidate's name as an alias of an existing
	// entity. Committing the same match twice is a no-op upsert.
	CommitMatch(ctx context.Context, rec model.CandidateRecord, entityID string) error
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p resilience.RetryPolicy) Option {
	return func(c *httpClient) { c.retry = p }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) { c.http.Timeout = d }
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

type httpClient struct {
	url     string
	token   string
	http    *http.Client
	retry   resilience.RetryPolicy
	limiter *rate.Limiter
}

// NewClient creates a gateway for the graph store at url authenticated with
// the given API token.
func NewClient(url, token string, opts ...Option) Client {
	c := &httpClient{
		url:   url,
		token: token,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry:   resilience.DefaultRetryPolicy(),
		limiter: rate.NewLimiter(rate.Limit(10), 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// typeSchema maps an entity type onto the graph schema's field names. The
// ingredient type uses plural spellings throughout; that asymmetry is the
// store's, not ours.
type typeSchema struct {
	queryField   string
	addMutation  string
	addInput     string
	updMutation  string
	updInput     string
	payloadField string
	idField      string
}

var schemas = map[model.EntityType]typeSchema{
	model.EntityProduct: {
		queryField:   "queryProduct",
		addMutation:  "addProduct",
		addInput:     "[AddProductInput!]!",
		updMutation:  "updateProduct",
		updInput:     "UpdateProductInput!",
		payloadField: "product",
		idField:      "productID",
	},
	model.EntityIngredient: {
		queryField:   "queryIngredients",
		addMutation:  "addIngredients",
		addInput:     "[AddIngredientsInput!]!",
		updMutation:  "updateIngredients",
		updInput:     "UpdateIngredientsInput!",
		payloadField: "ingredients",
		idField:      "ingredientID",
	},
}

type wireEntity struct {
	ProductID    string   `json:"productID"`
	IngredientID string   `json:"ingredientID"`
	Title        string   `json:"title"`
	Country      string   `json:"country"`
	Aliases      []string `json:"aliases"`
	CreatedAt    string   `json:"createdAt"`
}

func (w wireEntity) id() string {
	if w.ProductID != "" {
		return w.ProductID
	}
	return w.IngredientID
}

func (c *httpClient) QueryEntities(ctx context.Context, typ model.EntityType) ([]model.Entity, error) {
	sc, ok := schemas[typ]
	if !ok {
		return nil, eris.Errorf("graphstore: unknown entity type %q", typ)
	}

	query := `query { ` + sc.queryField + ` { ` + sc.idField + ` title country aliases createdAt } }`

	list, err := do(ctx, c, "query_entities", query, nil, func(data json.RawMessage) ([]wireEntity, error) {
		var payload map[string]*json.RawMessage
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "graphstore: decode entity list"), 0)
		}
		raw, ok := payload[sc.queryField]
		if !ok || raw == nil {
			return nil, resilience.NewTransientError(eris.Errorf("graphstore: response missing %s", sc.queryField), 0)
		}
		var ents []wireEntity
		if err := json.Unmarshal(*raw, &ents); err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "graphstore: decode entity list"), 0)
		}
		return ents, nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.Entity, 0, len(list))
	for _, w := range list {
		ent := model.Entity{
			ID:      w.id(),
			Type:    typ,
			Name:    w.Title,
			Country: w.Country,
			Aliases: w.Aliases,
		}
		if w.CreatedAt != "" {
			if ts, err := time.Parse(time.RFC3339, w.CreatedAt); err == nil {
				ent.CreatedAt = ts
			}
		}
		out = append(out, ent)
	}
	return out, nil
}

func (c *httpClient) CommitEntity(ctx context.Context, spec EntitySpec) (string, error) {
	sc, ok := schemas[spec.Type]
	if !ok {
		return "", eris.Errorf("graphstore: unknown entity type %q", spec.Type)
	}

	mutation := `mutation ($in: ` + sc.addInput + `) {
  ` + sc.addMutation + `(input: $in) { ` + sc.payloadField + ` { ` + sc.idField + ` title } }
}`

	input := map[string]any{"title": spec.Name}
	if spec.Country != "" {
		input["country"] = spec.Country
	}
	if len(spec.Aliases) > 0 {
		input["aliases"] = spec.Aliases
	}
	vars := map[string]any{"in": []any{input}}

	return do(ctx, c, "commit_entity", mutation, vars, func(data json.RawMessage) (string, error) {
		return extractID(data, sc.addMutation, sc.payloadField, sc.idField)
	})
}

func (c *httpClient) CommitMatch(ctx context.Context, rec model.CandidateRecord, entityID string) error {
	sc, ok := schemas[rec.Type]
	if !ok {
		return eris.Errorf("graphstore: unknown entity type %q", rec.Type)
	}

	mutation := `mutation ($in: ` + sc.updInput + `) {
  ` + sc.updMutation + `(input: $in) { ` + sc.payloadField + ` { ` + sc.idField + ` } }
}`

	vars := map[string]any{
		"in": map[string]any{
			"filter": map[string]any{sc.idField: []string{entityID}},
			"set":    map[string]any{"aliases": []string{rec.Name}},
		},
	}

	_, err := do(ctx, c, "commit_match", mutation, vars, func(data json.RawMessage) (string, error) {
		return extractID(data, sc.updMutation, sc.payloadField, sc.idField)
	})
	return err
}

// graphQLResponse is the envelope every graph store response must parse to.
type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// do posts one GraphQL request under the retry policy. Each attempt
// validates the response end to end, including the operation's expected
// acknowledgment via parse: transport failures, 5xx-equivalent statuses,
// unparseable bodies, and missing acknowledgments are retried; a GraphQL
// errors payload is a rejection and fails immediately. Exhaustion surfaces
// as UnavailableError.
func do[T any](ctx context.Context, c *httpClient, op, query string, vars map[string]any, parse func(json.RawMessage) (T, error)) (T, error) {
	var zero T

	body, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	if err != nil {
		return zero, eris.Wrap(err, "graphstore: marshal request")
	}

	policy := c.retry
	policy.OnRetry = resilience.RetryLogger("graphstore", op)

	val, err := resilience.DoVal(ctx, policy, func(ctx context.Context) (T, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return zero, eris.Wrap(err, "graphstore: rate limit wait")
		}
		data, err := c.post(ctx, op, body)
		if err != nil {
			return zero, err
		}
		return parse(data)
	})
	if err != nil {
		if resilience.IsTransient(err) {
			return zero, &UnavailableError{Op: op, Attempts: policy.MaxAttempts, Last: err}
		}
		return zero, err
	}
	return val, nil
}

// post performs a single attempt and classifies the outcome.
func (c *httpClient) post(ctx context.Context, op string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "graphstore: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Dg-Auth", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "graphstore: send request"), 0)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "graphstore: read response"), resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("graphstore: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, &RequestError{Op: op, Message: statusErr.Error()}
	}

	var envelope graphQLResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "graphstore: malformed response body"), resp.StatusCode)
	}

	if len(envelope.Errors) > 0 {
		return nil, &RequestError{Op: op, Message: envelope.Errors[0].Message}
	}

	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil, resilience.NewTransientError(eris.New("graphstore: response carries no data"), resp.StatusCode)
	}

	return envelope.Data, nil
}

// extractID digs mutation -> payload -> [0] -> idField out of a response and
// fails when any link is missing: a mutation without its acknowledgment is
// not a success.
func extractID(data json.RawMessage, mutation, payloadField, idField string) (string, error) {
	var outer map[string]map[string][]map[string]any
	if err := json.Unmarshal(data, &outer); err != nil {
		return "", resilience.NewTransientError(eris.Wrap(err, "graphstore: decode mutation payload"), 0)
	}

	items := outer[mutation][payloadField]
	if len(items) == 0 {
		return "", resilience.NewTransientError(
			eris.Errorf("graphstore: %s response missing %s acknowledgment", mutation, payloadField), 0)
	}

	id, _ := items[0][idField].(string)
	if id == "" {
		return "", resilience.NewTransientError(
			eris.Errorf("graphstore: %s response missing %s", mutation, idField), 0)
	}
	return id, nil
}
