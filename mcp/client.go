// Package mcp connects agents to Model Context Protocol servers. A server
// is a subprocess speaking JSON-RPC 2.0 over its stdin/stdout; the client
// performs the initialize handshake, discovers the server's tools and adapts
// them into regular capabilities an agent can hold.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/troupe-dev/troupe/logging"
)

// protocolVersion is the MCP revision this client negotiates.
const protocolVersion = "2024-11-05"

// clientName and clientVersion identify us to servers during initialize.
const (
	clientName    = "troupe"
	clientVersion = "0.1.0"
)

// ClientOptions configure a Client.
type ClientOptions struct {
	// Env appends KEY=VALUE pairs to the server process environment.
	Env []string
	// Logger receives protocol and server stderr activity. Defaults to a
	// no-op logger.
	Logger logging.Logger
}

// Client talks to one MCP server. Requests are serialized: a single
// in-flight call at a time, which matches the line-oriented stdio framing.
type Client struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	logger logging.Logger

	server serverInfo

	mu        sync.Mutex
	requestID uint64
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type rpcRequest struct {
	JSONRPC string  `json:"jsonrpc"`
	ID      *uint64 `json:"id,omitempty"`
	Method  string  `json:"method"`
	Params  any     `json:"params,omitempty"`
}

type rpcFrame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id"`
	Method  string          `json:"method"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// ToolInfo describes one tool advertised by the server.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// NewClient starts the server subprocess and performs the initialize
// handshake. Close terminates the subprocess.
func NewClient(ctx context.Context, command string, args []string, optFns ...func(o *ClientOptions)) (*Client, error) {
	opts := ClientOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)

	cmd := exec.CommandContext(ctx, command, args...)
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp server %s: stdin: %w", command, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("mcp server %s: stdout: %w", command, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("mcp server %s: stderr: %w", command, err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("start mcp server %s: %w", command, err)
	}

	// Server diagnostics land in the log instead of vanishing.
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			logger.Debug("mcp.server.stderr", "command", command, "line", scanner.Text())
		}
	}()

	c := newClientFromPipes(stdin, stdout, logger)
	c.cmd = cmd
	if err := c.initialize(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("initialize mcp server %s: %w", command, err)
	}
	return c, nil
}

// newClientFromPipes wires a client over raw pipes. Tests use it to talk to
// an in-process fake server.
func newClientFromPipes(stdin io.WriteCloser, stdout io.Reader, logger logging.Logger) *Client {
	return &Client{
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
		logger: logging.OrNoOp(logger),
	}
}

// initialize negotiates the protocol and announces readiness.
func (c *Client) initialize(ctx context.Context) error {
	result, err := c.call(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
	})
	if err != nil {
		return err
	}

	var init struct {
		ProtocolVersion string     `json:"protocolVersion"`
		ServerInfo      serverInfo `json:"serverInfo"`
	}
	if err := json.Unmarshal(result, &init); err != nil {
		return fmt.Errorf("parse initialize result: %w", err)
	}
	c.server = init.ServerInfo

	if err := c.notify("notifications/initialized", nil); err != nil {
		return err
	}

	c.logger.Info("mcp.initialized",
		"server", init.ServerInfo.Name,
		"version", init.ServerInfo.Version,
		"protocol", init.ProtocolVersion,
	)
	return nil
}

// ServerName returns the name the server reported during initialize.
func (c *Client) ServerName() string { return c.server.Name }

// ListTools returns the server's advertised tools.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	result, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var listed struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := json.Unmarshal(result, &listed); err != nil {
		return nil, fmt.Errorf("parse tools list: %w", err)
	}
	return listed.Tools, nil
}

// call sends one request and blocks until its response arrives. Frames
// without our id (server notifications, stale traffic) are skipped.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.requestID++
	id := c.requestID
	if err := c.send(rpcRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params}); err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	for {
		line, err := c.stdout.ReadBytes('\n')
		if err != nil {
			return nil, fmt.Errorf("read %s response: %w", method, err)
		}
		var frame rpcFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			return nil, fmt.Errorf("malformed server frame: %w", err)
		}
		if frame.ID == nil || *frame.ID != id {
			c.logger.Debug("mcp.frame.skipped", "method", frame.Method)
			continue
		}
		if frame.Error != nil {
			return nil, frame.Error
		}
		return frame.Result, nil
	}
}

// notify sends a request without an id; the server must not answer it.
func (c *Client) notify(method string, params any) error {
	if err := c.send(rpcRequest{JSONRPC: "2.0", Method: method, Params: params}); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}
	return nil
}

func (c *Client) send(req rpcRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	_, err = c.stdin.Write(append(payload, '\n'))
	return err
}

// Close shuts the transport down and reaps the subprocess, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stdin != nil {
		c.stdin.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
		_ = c.cmd.Wait()
	}
	return nil
}
