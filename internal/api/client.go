package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/jbweber/thoth/internal/provision"
	"github.com/jbweber/thoth/internal/remote"
)

// DefaultTimeout bounds a single HTTP exchange.
const DefaultTimeout = 30 * time.Second

// Client is a remote.Client backed by a thoth REST server.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.SugaredLogger
}

var (
	_ remote.Client       = (*Client)(nil)
	_ remote.SystemInfoer = (*Client)(nil)
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

func WithLogger(log *zap.SugaredLogger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient returns a Client for the server at baseURL, for example
// "http://virt01:3000".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		log:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call performs one request. out, when non-nil, receives the decoded body of
// a successful response.
func (c *Client) call(ctx context.Context, op, resource, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return remote.Validation(op, fmt.Errorf("encoding request: %w", err))
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return remote.Validation(op, fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return remote.Timeout(op, resource, err)
		}
		return remote.Unavailable(op, resource, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return remote.Unavailable(op, resource, fmt.Errorf("reading response: %w", err))
	}
	c.log.Debugw("api call", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return errorFor(op, resource, resp.StatusCode, envelope{Error: strings.TrimSpace(string(raw))})
		}
		return remote.Rejected(op, resource, fmt.Errorf("decoding response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Success {
		return errorFor(op, resource, resp.StatusCode, env)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return remote.Rejected(op, resource, fmt.Errorf("decoding response: %w", err))
		}
	}
	return nil
}

func vmPath(name string, rest ...string) string {
	p := "/api/vms/" + url.PathEscape(name)
	for _, r := range rest {
		p += "/" + url.PathEscape(r)
	}
	return p
}

func (c *Client) ListResources(ctx context.Context) ([]remote.ResourceSummary, error) {
	var out listResponse
	if err := c.call(ctx, "list resources", "", http.MethodGet, "/api/vms", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.VMs, nil
}

func (c *Client) GetResourceDetail(ctx context.Context, name string) (*remote.ResourceDetail, error) {
	var out detailResponse
	if err := c.call(ctx, "get detail", name, http.MethodGet, vmPath(name), nil, nil, &out); err != nil {
		return nil, err
	}
	if out.Name == "" {
		out.Name = name
	}
	return &remote.ResourceDetail{
		Name:    out.Name,
		State:   out.State,
		Running: out.Running,
		Info:    out.Info,
		XML:     out.XML,
	}, nil
}

func (c *Client) GetResourceStatus(ctx context.Context, name string) (*remote.ResourceStatus, error) {
	var out statusResponse
	if err := c.call(ctx, "get status", name, http.MethodGet, vmPath(name, "status"), nil, nil, &out); err != nil {
		return nil, err
	}
	return &remote.ResourceStatus{State: out.State, Running: out.Running}, nil
}

func (c *Client) GetResourceStats(ctx context.Context, name string) (*remote.ResourceStats, error) {
	var out statsResponse
	if err := c.call(ctx, "get stats", name, http.MethodGet, vmPath(name, "stats"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Stats, nil
}

func (c *Client) action(ctx context.Context, action remote.Action, name string) error {
	return c.call(ctx, string(action), name, http.MethodPost, vmPath(name, string(action)), nil, nil, nil)
}

func (c *Client) Start(ctx context.Context, name string) error {
	return c.action(ctx, remote.ActionStart, name)
}

func (c *Client) Shutdown(ctx context.Context, name string) error {
	return c.action(ctx, remote.ActionShutdown, name)
}

func (c *Client) Reboot(ctx context.Context, name string) error {
	return c.action(ctx, remote.ActionReboot, name)
}

func (c *Client) Pause(ctx context.Context, name string) error {
	return c.action(ctx, remote.ActionPause, name)
}

func (c *Client) Resume(ctx context.Context, name string) error {
	return c.action(ctx, remote.ActionResume, name)
}

func (c *Client) Destroy(ctx context.Context, name string) error {
	return c.action(ctx, remote.ActionDestroy, name)
}

func (c *Client) DeleteResource(ctx context.Context, name string, removeDisks bool) error {
	q := url.Values{"removeDisks": {strconv.FormatBool(removeDisks)}}
	return c.call(ctx, "delete", name, http.MethodDelete, vmPath(name), q, nil, nil)
}

func (c *Client) ListSnapshots(ctx context.Context, name string) ([]remote.Snapshot, error) {
	var out snapshotsResponse
	if err := c.call(ctx, "list snapshots", name, http.MethodGet, vmPath(name, "snapshots"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Snapshots, nil
}

func (c *Client) CreateSnapshot(ctx context.Context, name, snapshotName, description string) error {
	in := snapshotRequest{SnapshotName: snapshotName, Description: description}
	return c.call(ctx, "create snapshot", name, http.MethodPost, vmPath(name, "snapshots"), nil, in, nil)
}

func (c *Client) RevertSnapshot(ctx context.Context, name, snapshotName string) error {
	return c.call(ctx, "revert snapshot", name, http.MethodPost, vmPath(name, "snapshots", snapshotName, "revert"), nil, nil, nil)
}

func (c *Client) DeleteSnapshot(ctx context.Context, name, snapshotName string) error {
	return c.call(ctx, "delete snapshot", name, http.MethodDelete, vmPath(name, "snapshots", snapshotName), nil, nil, nil)
}

func (c *Client) CloneResource(ctx context.Context, name, cloneName string) error {
	return c.call(ctx, "clone", name, http.MethodPost, vmPath(name, "clone"), nil, cloneRequest{CloneName: cloneName}, nil)
}

func (c *Client) GetConsoleEndpoint(ctx context.Context, name string) (*remote.ConsoleEndpoint, error) {
	var out consoleResponse
	if err := c.call(ctx, "get console", name, http.MethodGet, vmPath(name, "vnc"), nil, nil, &out); err != nil {
		return nil, err
	}
	ep := out.ConsoleEndpoint
	if ep.Display == "" && ep.Port > 0 {
		return remote.NewConsoleEndpoint(ep.Host, ep.Port), nil
	}
	return &ep, nil
}

// CreateProvisioningRequest posts the request to the deploy route and
// returns the name the server assigned.
func (c *Client) CreateProvisioningRequest(ctx context.Context, req remote.ProvisioningRequest) (string, error) {
	var out deployResponse
	if err := c.call(ctx, "deploy", req.Hostname, http.MethodPost, "/api/vms/deploy", nil, newDeployRequest(req), &out); err != nil {
		return "", err
	}
	if out.VMName == "" {
		return req.Hostname, nil
	}
	return out.VMName, nil
}

func (c *Client) GetResourceAddress(ctx context.Context, name string) (*remote.Address, error) {
	var out addressResponse
	if err := c.call(ctx, "get address", name, http.MethodGet, vmPath(name, "ip"), nil, nil, &out); err != nil {
		return nil, err
	}
	primary := out.PrimaryIP
	if primary == "" {
		primary = remote.PrimaryIPv4(out.Interfaces)
	}
	if primary == "" {
		return nil, remote.Rejected("get address", name, remote.ErrAddressNotAvailable)
	}
	return &remote.Address{Primary: primary, Interfaces: out.Interfaces}, nil
}

// SubmitRun starts a server-side provisioning run for req and returns its
// status at submission.
func (c *Client) SubmitRun(ctx context.Context, req remote.ProvisioningRequest) (*provision.RunStatus, error) {
	var out runResponse
	if err := c.call(ctx, "submit run", req.Hostname, http.MethodPost, "/api/runs", nil, newDeployRequest(req), &out); err != nil {
		return nil, err
	}
	st := out.RunStatus
	return &st, nil
}

// GetRun returns the current status of a run submitted to the server.
func (c *Client) GetRun(ctx context.Context, id string) (*provision.RunStatus, error) {
	var out runResponse
	if err := c.call(ctx, "get run", id, http.MethodGet, "/api/runs/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	st := out.RunStatus
	return &st, nil
}

// ListRuns returns the runs the server still retains, oldest first.
func (c *Client) ListRuns(ctx context.Context) ([]provision.RunStatus, error) {
	var out runsResponse
	if err := c.call(ctx, "list runs", "", http.MethodGet, "/api/runs", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

// DismissRun frees the server's orchestrator from a finished run before its
// grace period ends.
func (c *Client) DismissRun(ctx context.Context, id string) error {
	return c.call(ctx, "dismiss run", id, http.MethodDelete, "/api/runs/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) SystemInfo(ctx context.Context) (*remote.SystemInfo, error) {
	var out systemResponse
	if err := c.call(ctx, "system info", "", http.MethodGet, "/api/system/info", nil, nil, &out); err != nil {
		return nil, err
	}
	info := out.SystemInfo
	return &info, nil
}
