// Package smartsync implements the smart-sync client: an optional call
// to the manifest server's XML-RPC method GetApprovedManifest or
// GetManifest that replaces the working manifest with a server-approved
// snapshot before any project fetches. No XML-RPC library is available,
// so the envelope is hand-built here and sent over go-retryablehttp the
// way internal/repo's clone-bundle fetch reuses that client for
// resilient HTTP (see internal/repo/fetch.go).
package smartsync

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
)

// Client calls a manifest server's smart-sync XML-RPC endpoint.
type Client struct {
	ServerURL string
	http      *retryablehttp.Client
}

// NewClient returns a Client posting XML-RPC envelopes to serverURL.
func NewClient(serverURL string) *Client {
	c := retryablehttp.NewClient()
	c.Logger = nil
	c.RetryMax = 2
	return &Client{ServerURL: serverURL, http: c}
}

// methodCall/methodResponse model just enough of the XML-RPC wire format
// (http://xmlrpc.com/spec, string-only params/results) to drive these
// two calls; no general-purpose XML-RPC support is attempted.
type methodCall struct {
	XMLName    xml.Name `xml:"methodCall"`
	MethodName string   `xml:"methodName"`
	Params     []string `xml:"params>param>value>string"`
}

type methodResponse struct {
	XMLName xml.Name `xml:"methodResponse"`
	Fault   *struct {
		Value rpcFaultValue `xml:"value"`
	} `xml:"fault"`
	Params []string `xml:"params>param>value>string"`
}

type rpcFaultValue struct {
	Members []struct {
		Name  string `xml:"name"`
		Value struct {
			String string `xml:"string"`
			Int    string `xml:"int"`
		} `xml:"value"`
	} `xml:"struct>member"`
}

// GetApprovedManifest calls GetApprovedManifest(branch[, target]), the
// method behind --smart-sync-branch.
func (c *Client) GetApprovedManifest(ctx context.Context, branch, target string) (string, error) {
	params := []string{branch}
	if target != "" {
		params = append(params, target)
	}
	return c.call(ctx, "GetApprovedManifest", params)
}

// GetManifest calls GetManifest(tag), issued for --smart-tag.
func (c *Client) GetManifest(ctx context.Context, tag string) (string, error) {
	return c.call(ctx, "GetManifest", []string{tag})
}

func (c *Client) call(ctx context.Context, method string, params []string) (string, error) {
	call := methodCall{MethodName: method, Params: params}
	body, err := xml.Marshal(call)
	if err != nil {
		return "", fmt.Errorf("smart-sync: encode request: %w", err)
	}
	envelope := append([]byte(xml.Header), body...)

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", c.ServerURL, bytes.NewReader(envelope))
	if err != nil {
		return "", fmt.Errorf("smart-sync: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("smart-sync: %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("smart-sync: read response: %w", err)
	}

	var mr methodResponse
	if err := xml.Unmarshal(data, &mr); err != nil {
		return "", fmt.Errorf("smart-sync: decode response: %w", err)
	}
	if mr.Fault != nil {
		return "", fmt.Errorf("smart-sync: %s: %s", method, faultMessage(mr.Fault.Value))
	}
	if len(mr.Params) == 0 {
		return "", fmt.Errorf("smart-sync: %s: empty response", method)
	}
	return mr.Params[0], nil
}

func faultMessage(f rpcFaultValue) string {
	var code, msg string
	for _, m := range f.Members {
		switch m.Name {
		case "faultCode":
			code = m.Value.Int
		case "faultString":
			msg = m.Value.String
		}
	}
	if code == "" && msg == "" {
		return "unknown fault"
	}
	return strings.TrimSpace(fmt.Sprintf("%s %s", code, msg))
}
