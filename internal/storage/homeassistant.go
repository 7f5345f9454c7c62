package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// haChunkSize is the longest value an input_text helper accepts.
	haChunkSize = 250
	haMaxChunks = 10
)

// ErrTooLarge is returned when a value does not fit in the input_text helpers.
var ErrTooLarge = errors.New("storage: value exceeds input_text capacity")

// HomeAssistantStore keeps schedules in Home Assistant input_text helpers
// through the REST API. A value is split into 250-character chunks stored in
// <base>_0 .. <base>_9, and <base>_meta holds "chunks:N".
type HomeAssistantStore struct {
	baseURL string
	token   string
	base    string
	client  *http.Client
}

// NewHomeAssistantStore returns a store talking to the Home Assistant
// instance at baseURL with a long-lived access token. entityBase is the
// helper prefix, for example "input_text.widget_tarif".
func NewHomeAssistantStore(baseURL, token, entityBase string) *HomeAssistantStore {
	if entityBase == "" {
		entityBase = "input_text.widget_tarif"
	}
	return &HomeAssistantStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		base:    entityBase,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// entityBase returns the helper prefix for a schedule key; the default
// schedule uses the bare prefix.
func (h *HomeAssistantStore) entityBase(key string) string {
	if key == "" || key == "default" {
		return h.base
	}
	return h.base + "_" + key
}

type haState struct {
	State       string    `json:"state"`
	LastChanged time.Time `json:"last_changed"`
}

func (h *HomeAssistantStore) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Content-Type", "application/json")
	return h.client.Do(req)
}

// state returns the state of entity, or nil if Home Assistant does not know it.
func (h *HomeAssistantStore) state(ctx context.Context, entity string) (*haState, error) {
	resp, err := h.do(ctx, http.MethodGet, "/api/states/"+entity, nil)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", entity, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("get %s: status %d", entity, resp.StatusCode)
	}
	var st haState
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decode %s: %w", entity, err)
	}
	return &st, nil
}

func (h *HomeAssistantStore) setValue(ctx context.Context, entity, value string) error {
	resp, err := h.do(ctx, http.MethodPost, "/api/services/input_text/set_value", map[string]string{
		"entity_id": entity,
		"value":     value,
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", entity, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("set %s: status %d", entity, resp.StatusCode)
	}
	return nil
}

// GetSchedule reassembles the chunks of key. A missing or malformed meta
// helper reads as no schedule.
func (h *HomeAssistantStore) GetSchedule(ctx context.Context, key string) (*Schedule, error) {
	base := h.entityBase(key)
	meta, err := h.state(ctx, base+"_meta")
	if err != nil || meta == nil {
		return nil, err
	}
	n, ok := parseChunkCount(meta.State)
	if !ok {
		return nil, nil
	}

	var b strings.Builder
	for i := 0; i < n; i++ {
		st, err := h.state(ctx, fmt.Sprintf("%s_%d", base, i))
		if err != nil {
			return nil, err
		}
		if st != nil {
			b.WriteString(st.State)
		}
	}
	if b.Len() == 0 {
		return nil, nil
	}
	return &Schedule{Key: key, Encoded: b.String(), UpdatedAt: meta.LastChanged}, nil
}

// SaveSchedule writes the chunks first and the meta helper last so a reader
// never sees a count larger than what was written.
func (h *HomeAssistantStore) SaveSchedule(ctx context.Context, s Schedule) error {
	chunks := splitChunks(s.Encoded, haChunkSize)
	if len(chunks) > haMaxChunks {
		return fmt.Errorf("%w: %d chunks", ErrTooLarge, len(chunks))
	}
	base := h.entityBase(s.Key)
	for i, c := range chunks {
		if err := h.setValue(ctx, fmt.Sprintf("%s_%d", base, i), c); err != nil {
			return err
		}
	}
	return h.setValue(ctx, base+"_meta", fmt.Sprintf("chunks:%d", len(chunks)))
}

// Ping checks the API root answers.
func (h *HomeAssistantStore) Ping(ctx context.Context) error {
	resp, err := h.do(ctx, http.MethodGet, "/api/", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("home assistant: status %d", resp.StatusCode)
	}
	return nil
}

func parseChunkCount(state string) (int, bool) {
	v, ok := strings.CutPrefix(state, "chunks:")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > haMaxChunks {
		return 0, false
	}
	return n, true
}

func splitChunks(s string, size int) []string {
	var out []string
	for i := 0; i < len(s); i += size {
		out = append(out, s[i:min(i+size, len(s))])
	}
	return out
}
