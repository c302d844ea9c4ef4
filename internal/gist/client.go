// Package gist provides the remote ticket blob store client. The ticket list
// lives in a single JSON file inside a GitHub gist and is mutated by
// read-modify-write; writes are conditional on the ETag captured at read time
// so concurrent writers cannot silently drop each other's updates.
package gist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/calyptra/guildbot/internal/config"
	"github.com/calyptra/guildbot/internal/models"
	"github.com/calyptra/guildbot/pkg/logger"
)

// ErrConflict reports that the gist changed between read and write.
var ErrConflict = errors.New("gist revision conflict")

// updateRetries bounds how many times an Update re-runs its read-modify-write
// after a revision conflict.
const updateRetries = 3

// Client is a GitHub gist client scoped to one gist file.
type Client struct {
	baseURL  string
	gistID   string
	filename string
	token    string
	timeout  time.Duration
	http     *http.Client
	log      *logger.Logger

	// mu serializes read-modify-write cycles in this process; the ETag guard
	// covers writers in other processes.
	mu sync.Mutex
}

// NewClient creates a gist client.
func NewClient(cfg *config.GistConfig, log *logger.Logger) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		gistID:   cfg.GistID,
		filename: cfg.Filename,
		token:    cfg.Token,
		timeout:  cfg.Timeout(),
		http:     &http.Client{},
		log:      log,
	}
}

// Configured reports whether the client has the credentials it needs.
func (c *Client) Configured() bool {
	return c.token != "" && c.gistID != ""
}

// gistResponse is the subset of the gist API payload the client reads.
type gistResponse struct {
	Files map[string]struct {
		Content string `json:"content"`
	} `json:"files"`
}

// gistPatch is the payload for updating the gist file.
type gistPatch struct {
	Files map[string]gistPatchFile `json:"files"`
}

type gistPatchFile struct {
	Content string `json:"content"`
}

// Read fetches the ticket document and the ETag identifying its revision.
// A gist with no file content yet yields an empty document.
func (c *Client) Read(ctx context.Context) (*models.TicketDocument, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.gistURL(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create gist request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read gist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("gist API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read gist response: %w", err)
	}

	var gist gistResponse
	if err := json.Unmarshal(body, &gist); err != nil {
		return nil, "", fmt.Errorf("failed to decode gist response: %w", err)
	}

	etag := resp.Header.Get("ETag")

	content := gist.Files[c.filename].Content
	if content == "" {
		return &models.TicketDocument{Tickets: []models.Ticket{}, LastUpdated: time.Now().UnixMilli()}, etag, nil
	}

	var doc models.TicketDocument
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, "", fmt.Errorf("failed to decode ticket document: %w", err)
	}
	if doc.Tickets == nil {
		doc.Tickets = []models.Ticket{}
	}
	return &doc, etag, nil
}

// write overwrites the gist file, conditional on the revision identified by
// etag. A 412 response means another writer got there first.
func (c *Client) write(ctx context.Context, doc *models.TicketDocument, etag string) error {
	doc.LastUpdated = time.Now().UnixMilli()

	content, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ticket document: %w", err)
	}

	payload, err := json.Marshal(gistPatch{
		Files: map[string]gistPatchFile{
			c.filename: {Content: string(content)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to encode gist patch: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.gistURL(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create gist request: %w", err)
	}
	c.setHeaders(req)
	if etag != "" {
		req.Header.Set("If-Match", etag)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to write gist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPreconditionFailed {
		return ErrConflict
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gist API returned status %d", resp.StatusCode)
	}
	return nil
}

// Update runs mutate inside a read-modify-write cycle and commits the result
// with a conditional write, retrying the whole cycle on revision conflicts.
// An error from mutate aborts the cycle with nothing written.
func (c *Client) Update(ctx context.Context, mutate func(doc *models.TicketDocument) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < updateRetries; attempt++ {
		doc, etag, err := c.Read(ctx)
		if err != nil {
			return err
		}

		if err := mutate(doc); err != nil {
			return err
		}

		err = c.write(ctx, doc, etag)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}

		lastErr = err
		c.log.Warn().
			Int("attempt", attempt+1).
			Msg("Gist revision conflict, retrying update")
	}
	return lastErr
}

func (c *Client) gistURL() string {
	return fmt.Sprintf("%s/gists/%s", c.baseURL, c.gistID)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "token "+c.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("Content-Type", "application/json")
}
