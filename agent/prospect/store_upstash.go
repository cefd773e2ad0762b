package prospect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	defaultStoreKeyPrefix = "prospect:"
	defaultScanCount      = 200
	maxResponseSizeBytes  = 8 << 20
)

// StoreOption customizes UpstashRedisStore.
type StoreOption func(*UpstashRedisStore)

func WithKeyPrefix(prefix string) StoreOption {
	return func(s *UpstashRedisStore) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

// WithTTL expires records after ttl. Zero (the default) keeps them forever.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *UpstashRedisStore) {
		s.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) StoreOption {
	return func(s *UpstashRedisStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// UpstashRedisStore persists records as JSON strings in Upstash Redis via REST.
type UpstashRedisStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
}

var _ Store = (*UpstashRedisStore)(nil)

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type UpstashRedisConfig struct {
	URL     string        `envconfig:"URL" split_words:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

func NewUpstashRedisStore(cfg UpstashRedisConfig, opts ...StoreOption) (*UpstashRedisStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	store := &UpstashRedisStore{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		keyPrefix:  defaultStoreKeyPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	if store.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}

	return store, nil
}

func (s *UpstashRedisStore) Create(ctx context.Context, rec *Record) (*Record, error) {
	if rec == nil {
		return nil, ErrNilRecord
	}
	cp, err := prepareWrite(rec.ClientID, rec)
	if err != nil {
		return nil, err
	}
	ok, err := s.set(ctx, cp, "NX")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRecordExists
	}
	return cp, nil
}

func (s *UpstashRedisStore) GetByID(ctx context.Context, clientID string) (*Record, error) {
	id, err := normalizeID(clientID)
	if err != nil {
		return nil, err
	}

	resp, err := s.exec(ctx, []any{"GET", s.redisKey(id)})
	if err != nil {
		return nil, err
	}
	if isNull(resp.Result) {
		return nil, ErrRecordNotFound
	}

	var encoded string
	if err := json.Unmarshal(resp.Result, &encoded); err != nil {
		return nil, fmt.Errorf("decode record payload: %w", err)
	}
	return decodeRecord(encoded)
}

func (s *UpstashRedisStore) GetByName(ctx context.Context, fragment string) (*Record, error) {
	if strings.TrimSpace(fragment) == "" {
		return nil, ErrRecordNotFound
	}
	all, err := s.ListByIDPrefix(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, rec := range all {
		if nameMatches(rec, fragment) {
			return rec, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (s *UpstashRedisStore) Update(ctx context.Context, clientID string, rec *Record) (*Record, error) {
	cp, err := prepareWrite(clientID, rec)
	if err != nil {
		return nil, err
	}
	ok, err := s.set(ctx, cp, "XX")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cp, nil
}

func (s *UpstashRedisStore) Delete(ctx context.Context, clientID string) error {
	id, err := normalizeID(clientID)
	if err != nil {
		return err
	}
	resp, err := s.exec(ctx, []any{"DEL", s.redisKey(id)})
	if err != nil {
		return err
	}
	var deleted int64
	if err := json.Unmarshal(resp.Result, &deleted); err != nil {
		return fmt.Errorf("decode delete result: %w", err)
	}
	if deleted == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *UpstashRedisStore) ListByIDPrefix(ctx context.Context, prefix string) ([]*Record, error) {
	keys, err := s.scanKeys(ctx, s.redisKey(prefix)+"*")
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []*Record{}, nil
	}
	sort.Strings(keys)

	cmd := make([]any, 0, len(keys)+1)
	cmd = append(cmd, "MGET")
	for _, k := range keys {
		cmd = append(cmd, k)
	}
	resp, err := s.exec(ctx, cmd)
	if err != nil {
		return nil, err
	}

	var values []*string
	if err := json.Unmarshal(resp.Result, &values); err != nil {
		return nil, fmt.Errorf("decode mget result: %w", err)
	}
	out := make([]*Record, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue // expired between SCAN and MGET
		}
		rec, err := decodeRecord(*v)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *UpstashRedisStore) set(ctx context.Context, rec *Record, mode string) (bool, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	cmd := []any{"SET", s.redisKey(rec.ClientID), string(payload), mode}
	if s.ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(s.ttl))
	}
	resp, err := s.exec(ctx, cmd)
	if err != nil {
		return false, err
	}
	return !isNull(resp.Result), nil
}

func (s *UpstashRedisStore) scanKeys(ctx context.Context, match string) ([]string, error) {
	cursor := "0"
	var keys []string
	for {
		resp, err := s.exec(ctx, []any{"SCAN", cursor, "MATCH", match, "COUNT", defaultScanCount})
		if err != nil {
			return nil, err
		}
		var page []json.RawMessage
		if err := json.Unmarshal(resp.Result, &page); err != nil || len(page) != 2 {
			return nil, fmt.Errorf("decode scan result: %s", string(resp.Result))
		}
		if err := json.Unmarshal(page[0], &cursor); err != nil {
			return nil, fmt.Errorf("decode scan cursor: %w", err)
		}
		var batch []string
		if err := json.Unmarshal(page[1], &batch); err != nil {
			return nil, fmt.Errorf("decode scan keys: %w", err)
		}
		keys = append(keys, batch...)
		if cursor == "0" {
			return keys, nil
		}
	}
}

func (s *UpstashRedisStore) redisKey(clientID string) string {
	return strings.TrimSpace(s.keyPrefix) + clientID
}

func (s *UpstashRedisStore) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if s == nil {
		return nil, errors.New("nil store")
	}
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func decodeRecord(encoded string) (*Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(encoded), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid record loaded from store: %w", err)
	}
	return &rec, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
