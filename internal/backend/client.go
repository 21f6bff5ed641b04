package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Body)
}

// Client talks to the hosted relational store over its REST surface.
// All reads and writes the synchronizer issues go through here.
type Client struct {
	baseURL string
	apiKey  string
	auth    *Auth
	http    *http.Client
}

// NewClient creates a REST client for the given project URL and API key.
// The auth session provides the per-user bearer token; it may be signed
// out, in which case requests carry only the API key.
func NewClient(baseURL, apiKey string, auth *Auth) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		auth:    auth,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Select reads all rows of table matching the query into dest, which must
// be a pointer to a slice.
func (c *Client) Select(ctx context.Context, table string, q *Query, dest any) error {
	u := c.baseURL + "/rest/v1/" + table
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, dest)
}

// Insert writes one row and decodes the server representation back into
// dest when dest is non-nil.
func (c *Client) Insert(ctx context.Context, table string, row any, dest any) error {
	body, err := json.Marshal(row)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rest/v1/"+table, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", "return=representation")
	return c.do(req, &singleRow{dest: dest})
}

// Upsert writes one row with on-conflict merge semantics on the given
// uniqueness columns.
func (c *Client) Upsert(ctx context.Context, table, onConflict string, row any, dest any) error {
	body, err := json.Marshal(row)
	if err != nil {
		return err
	}
	u := c.baseURL + "/rest/v1/" + table + "?" + NewQuery().OnConflict(onConflict).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=representation")
	return c.do(req, &singleRow{dest: dest})
}

// Update patches rows matching the query.
func (c *Client) Update(ctx context.Context, table string, q *Query, patch any) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	u := c.baseURL + "/rest/v1/" + table
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// singleRow unwraps the one-element array representation the store returns
// for single-row writes.
type singleRow struct {
	dest any
}

func (c *Client) do(req *http.Request, dest any) error {
	data, status, err := c.send(req)
	if err != nil {
		return err
	}

	// An expired bearer token answers 401. Renew it once and replay the
	// request; any further 401 surfaces as an APIError.
	if status == http.StatusUnauthorized && c.auth.SignedIn() {
		if refreshErr := c.auth.Refresh(req.Context()); refreshErr == nil {
			retry := req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return err
				}
				retry.Body = body
			}
			if data, status, err = c.send(retry); err != nil {
				return err
			}
		}
	}

	if status < 200 || status >= 300 {
		return &APIError{Status: status, Body: strings.TrimSpace(string(data))}
	}
	if dest == nil || len(data) == 0 {
		return nil
	}

	if sr, ok := dest.(*singleRow); ok {
		if sr.dest == nil {
			return nil
		}
		var rows []json.RawMessage
		if err := json.Unmarshal(data, &rows); err != nil {
			return fmt.Errorf("decode write response: %w", err)
		}
		if len(rows) == 0 {
			return fmt.Errorf("write returned no rows")
		}
		return json.Unmarshal(rows[0], sr.dest)
	}
	return json.Unmarshal(data, dest)
}

func (c *Client) send(req *http.Request) ([]byte, int, error) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if tok := c.auth.AccessToken(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return data, resp.StatusCode, nil
}
