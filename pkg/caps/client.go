package caps

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/gridinv/internal/logger"
	"github.com/marmos91/gridinv/pkg/protocol"
	"github.com/marmos91/gridinv/pkg/protocol/llsd"
	"github.com/sethvargo/go-retry"
)

// maxResponseSize bounds capability responses read into memory.
const maxResponseSize = 64 << 20

// Config holds client configuration.
type Config struct {
	// Timeout bounds each HTTP attempt
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt for
	// transient failures (network errors, 5xx, 429)
	MaxRetries uint64

	// Backoff is the base of the Fibonacci backoff between retries
	Backoff time.Duration

	// HTTPClient overrides the default client (tests)
	HTTPClient *http.Client
}

// Client posts LLSD documents to capability URLs.
type Client struct {
	httpClient *http.Client
	maxRetries uint64
	backoff    time.Duration
}

// NewClient creates a capability client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = 500 * time.Millisecond
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}

	return &Client{
		httpClient: httpClient,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
	}
}

// PostLLSD posts an LLSD document and decodes the LLSD reply, retrying
// transient failures.
func (c *Client) PostLLSD(ctx context.Context, url string, body any) (any, error) {
	payload, err := llsd.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode capability request: %w", err)
	}

	var result any
	err = c.do(ctx, url, llsd.ContentType, payload, func(resp []byte) error {
		decoded, err := llsd.Unmarshal(resp)
		if err != nil {
			return err
		}
		result = decoded
		return nil
	})
	return result, err
}

// postRaw posts opaque data (asset uploads) and decodes the LLSD reply.
func (c *Client) postRaw(ctx context.Context, url string, data []byte) (any, error) {
	var result any
	err := c.do(ctx, url, "application/octet-stream", data, func(resp []byte) error {
		decoded, err := llsd.Unmarshal(resp)
		if err != nil {
			return err
		}
		result = decoded
		return nil
	})
	return result, err
}

func (c *Client) do(ctx context.Context, url, contentType string, payload []byte, handle func([]byte) error) error {
	b := retry.NewFibonacci(c.backoff)
	attempt := 0

	return retry.Do(ctx, retry.WithMaxRetries(c.maxRetries, b), func(ctx context.Context) error {
		attempt++

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", llsd.ContentType)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Debug("Capability request to %s failed (attempt %d): %v", url, attempt, err)
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return retry.RetryableError(fmt.Errorf("failed to read capability response: %w", err))
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			statusErr := &StatusError{URL: url, StatusCode: resp.StatusCode}
			if statusErr.Temporary() {
				logger.Debug("Capability %s answered %d (attempt %d)", url, resp.StatusCode, attempt)
				return retry.RetryableError(statusErr)
			}
			return statusErr
		}

		return handle(body)
	})
}

// ============================================================================
// Inventory fetches
// ============================================================================

// FolderRequest names one folder of a FetchInventoryDescendents2 request.
type FolderRequest struct {
	FolderID     uuid.UUID
	OwnerID      uuid.UUID
	SortOrder    int32
	FetchFolders bool
	FetchItems   bool
}

// FetchDescendents lists the children of folders through the
// FetchInventoryDescendents2 (or FetchLibDescendents2) capability.
//
// The replies are returned as the same decoded messages the message
// transport delivers, so both paths feed the store identically. Folders the
// server reports as bad are logged and omitted.
func (c *Client) FetchDescendents(ctx context.Context, url string, folders []FolderRequest) ([]*protocol.InventoryDescendents, error) {
	requests := make([]any, 0, len(folders))
	for _, f := range folders {
		requests = append(requests, map[string]any{
			"folder_id":     f.FolderID,
			"owner_id":      f.OwnerID,
			"sort_order":    f.SortOrder,
			"fetch_folders": f.FetchFolders,
			"fetch_items":   f.FetchItems,
		})
	}

	reply, err := c.PostLLSD(ctx, url, map[string]any{"folders": requests})
	if err != nil {
		return nil, fmt.Errorf("fetch descendents: %w", err)
	}

	root := llsd.AsMap(reply)
	for _, bad := range llsd.AsArray(root["bad_folders"]) {
		entry := llsd.AsMap(bad)
		logger.Warn("Server could not list folder %s: %s", llsd.AsUUID(entry["folder_id"]), llsd.AsString(entry["error"]))
	}

	var result []*protocol.InventoryDescendents
	for _, raw := range llsd.AsArray(root["folders"]) {
		entry := llsd.AsMap(raw)
		if entry == nil {
			continue
		}
		msg := &protocol.InventoryDescendents{
			AgentID:     llsd.AsUUID(entry["agent_id"]),
			FolderID:    llsd.AsUUID(entry["folder_id"]),
			OwnerID:     llsd.AsUUID(entry["owner_id"]),
			Version:     llsd.AsInt(entry["version"]),
			Descendents: llsd.AsInt(entry["descendents"]),
		}
		for _, cat := range llsd.AsArray(entry["categories"]) {
			msg.Folders = append(msg.Folders, FolderFromLLSD(llsd.AsMap(cat), msg.OwnerID))
		}
		for _, it := range llsd.AsArray(entry["items"]) {
			msg.Items = append(msg.Items, ItemFromLLSD(llsd.AsMap(it)))
		}
		result = append(result, msg)
	}
	return result, nil
}

// FetchItems fetches full item records through the FetchInventory2 (or
// FetchLib2) capability.
func (c *Client) FetchItems(ctx context.Context, url string, agentID uuid.UUID, items []protocol.FetchItem) (*protocol.FetchInventoryReply, error) {
	requests := make([]any, 0, len(items))
	for _, item := range items {
		requests = append(requests, map[string]any{
			"owner_id": item.OwnerID,
			"item_id":  item.ItemID,
		})
	}

	reply, err := c.PostLLSD(ctx, url, map[string]any{
		"agent_id": agentID,
		"items":    requests,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch items: %w", err)
	}

	root := llsd.AsMap(reply)
	msg := &protocol.FetchInventoryReply{AgentID: llsd.AsUUID(root["agent_id"])}
	for _, raw := range llsd.AsArray(root["items"]) {
		msg.Items = append(msg.Items, ItemFromLLSD(llsd.AsMap(raw)))
	}
	return msg, nil
}

// ============================================================================
// Asset uploads
// ============================================================================

// UploadResult is the outcome of an uploader exchange.
type UploadResult struct {
	// AssetID is the id of the stored asset
	AssetID uuid.UUID

	// ItemID is the new inventory item, uuid.Nil when the capability
	// updated an existing item
	ItemID uuid.UUID
}

// UploadAsset runs the two-step uploader exchange: the request document is
// posted to the capability, which answers with a one-shot uploader URL, and
// the asset data is then posted to that URL.
//
// It serves creating items from assets (NewFileAgentInventory) and updating
// notecards, scripts and gestures.
func (c *Client) UploadAsset(ctx context.Context, url string, request map[string]any, data []byte) (UploadResult, error) {
	reply, err := c.PostLLSD(ctx, url, request)
	if err != nil {
		return UploadResult{}, fmt.Errorf("upload request: %w", err)
	}

	first := llsd.AsMap(reply)
	if state := llsd.AsString(first["state"]); state != "upload" {
		return UploadResult{}, uploadError(first, state)
	}
	uploader := llsd.AsString(first["uploader"])
	if uploader == "" {
		return UploadResult{}, fmt.Errorf("%w: no uploader url", ErrUploadFailed)
	}

	reply, err = c.postRaw(ctx, uploader, data)
	if err != nil {
		return UploadResult{}, fmt.Errorf("upload data: %w", err)
	}

	second := llsd.AsMap(reply)
	if state := llsd.AsString(second["state"]); state != "complete" {
		return UploadResult{}, uploadError(second, state)
	}
	return UploadResult{
		AssetID: llsd.AsUUID(second["new_asset"]),
		ItemID:  llsd.AsUUID(second["new_inventory_item"]),
	}, nil
}

func uploadError(reply map[string]any, state string) error {
	message := llsd.AsString(reply["message"])
	if errMap := llsd.AsMap(reply["error"]); errMap != nil && message == "" {
		message = llsd.AsString(errMap["message"])
	}
	if message == "" {
		message = "unexpected state " + state
	}
	return fmt.Errorf("%w: %s", ErrUploadFailed, message)
}
