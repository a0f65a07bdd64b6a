package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/hopline/conductor/internal/conductor"
)

// Client talks to a Server over its unix socket, mirroring the teacher's
// internal/transport.Client (bytes.Reader body, http.Client with a custom
// DialContext, thin get/post/delete helpers, checkStatus).
type Client struct {
	socketPath string
	http       *http.Client
}

// NewClient creates a Client bound to socketPath. No connection is made
// until the first request.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					return net.Dial("unix", socketPath)
				},
			},
		},
	}
}

func (c *Client) ListSessions() ([]SessionSummary, error) {
	resp, err := c.get("/sessions")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	var sessions []SessionSummary
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return nil, fmt.Errorf("ipc: decode response: %w", err)
	}
	return sessions, nil
}

func (c *Client) OpenSession(sshargs string) (*SessionSummary, error) {
	body, _ := json.Marshal(openSessionRequest{SSHArgs: sshargs})
	resp, err := c.post("/sessions", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusCreated); err != nil {
		return nil, err
	}
	var s SessionSummary
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("ipc: decode response: %w", err)
	}
	return &s, nil
}

func (c *Client) CloseSession(id string) error {
	resp, err := c.delete("/sessions/" + id)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp, http.StatusNoContent)
}

func (c *Client) RunCommand(id, cmdline string) ([]byte, int, error) {
	body, _ := json.Marshal(runCommandRequest{CmdLine: cmdline})
	resp, err := c.post("/sessions/"+id+"/run", body)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, 0, err
	}
	var r runCommandResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, 0, fmt.Errorf("ipc: decode response: %w", err)
	}
	return r.Output, r.Status, nil
}

func (c *Client) SendKeys(id string, data []byte) error {
	body, _ := json.Marshal(sendKeysRequest{Data: data})
	resp, err := c.post("/sessions/"+id+"/keys", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp, http.StatusNoContent)
}

func (c *Client) ListFiles(id, path string, sortByDate bool) ([]conductor.RemoteFile, error) {
	q := url.Values{"path": {path}}
	if sortByDate {
		q.Set("sort", "date")
	}
	resp, err := c.get("/sessions/" + id + "/files?" + q.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	var files []conductor.RemoteFile
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, fmt.Errorf("ipc: decode response: %w", err)
	}
	return files, nil
}

func (c *Client) Stat(id, path string) (conductor.RemoteStat, error) {
	q := url.Values{"path": {path}}
	resp, err := c.get("/sessions/" + id + "/files/stat?" + q.Encode())
	if err != nil {
		return conductor.RemoteStat{}, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return conductor.RemoteStat{}, err
	}
	var st conductor.RemoteStat
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return conductor.RemoteStat{}, fmt.Errorf("ipc: decode response: %w", err)
	}
	return st, nil
}

func (c *Client) Download(id, path string) ([]byte, error) {
	q := url.Values{"path": {path}}
	resp, err := c.get("/sessions/" + id + "/files/download?" + q.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	var result map[string][]byte
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ipc: decode response: %w", err)
	}
	return result["content"], nil
}

func (c *Client) Upload(id, path string, content []byte) error {
	body, _ := json.Marshal(uploadRequest{Path: path, Content: content})
	resp, err := c.post("/sessions/"+id+"/files/upload", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp, http.StatusNoContent)
}

func (c *Client) Mkdir(id, path string) error {
	body, _ := json.Marshal(pathRequest{Path: path})
	resp, err := c.post("/sessions/"+id+"/files/mkdir", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp, http.StatusNoContent)
}

func (c *Client) Delete(id, path string, recursive bool) error {
	q := url.Values{"path": {path}}
	if recursive {
		q.Set("recursive", "true")
	}
	resp, err := c.deleteWithQuery("/sessions/"+id+"/files", q)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp, http.StatusNoContent)
}

func (c *Client) Move(id, source, dest string) error {
	body, _ := json.Marshal(movePairRequest{Source: source, Dest: dest})
	resp, err := c.post("/sessions/"+id+"/files/move", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp, http.StatusNoContent)
}

func (c *Client) Link(id, source, dest string) error {
	body, _ := json.Marshal(movePairRequest{Source: source, Dest: dest})
	resp, err := c.post("/sessions/"+id+"/files/link", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp, http.StatusNoContent)
}

// HTTP helpers

func (c *Client) get(path string) (*http.Response, error) {
	return c.http.Get("http://hopline" + path)
}

func (c *Client) post(path string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	return c.http.Post("http://hopline"+path, "application/json", r)
}

func (c *Client) delete(path string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodDelete, "http://hopline"+path, nil)
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

func (c *Client) deleteWithQuery(path string, q url.Values) (*http.Response, error) {
	return c.delete(path + "?" + q.Encode())
}

func checkStatus(resp *http.Response, expected int) error {
	if resp.StatusCode == expected {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return mapStatusError(resp.StatusCode, errResp.Error)
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
}

// mapStatusError recovers the conductor package's file-RPC sentinel errors
// on the client side of the round trip server.writeFileError performs.
func mapStatusError(status int, msg string) error {
	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, conductor.ErrFileNotFound)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%s: %w", msg, conductor.ErrTransportClosed)
	case http.StatusNotImplemented:
		return fmt.Errorf("%s: %w", msg, conductor.ErrNotImplemented)
	default:
		return fmt.Errorf("HTTP %d: %s", status, msg)
	}
}
