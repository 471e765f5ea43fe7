package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// RemoteOptions configures a classifier reached over HTTP.
//
// The server exposes:
//
//	GET  {URL}/info     -> {"input_size":[w,h],"labels":["angry",...]}
//	POST {URL}/classify <- {"batch":n,"width":w,"height":h,"pixels":[...]}
//	                    -> {"logits":[[...],...]}
type RemoteOptions struct {
	URL            string
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
}

type remoteInfo struct {
	InputSize [2]int   `json:"input_size"`
	Labels    []string `json:"labels,omitempty"`
}

type remoteClassifyRequest struct {
	Batch  int       `json:"batch"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Pixels []float32 `json:"pixels"`
}

type remoteClassifyResponse struct {
	Logits [][]float32 `json:"logits"`
}

type remoteBackend struct {
	baseURL    string
	reqTimeout time.Duration
	httpClient *http.Client
	info       remoteInfo
}

// OpenRemote returns an Opener that fetches the remote model's input size and
// labels from /info.
func OpenRemote(opts RemoteOptions) Opener {
	return func(ctx context.Context) (Backend, error) {
		base := strings.TrimRight(strings.TrimSpace(opts.URL), "/")
		if base == "" {
			return nil, ErrDependencyUnavailable("remote classifier url is empty")
		}
		connect := opts.ConnectTimeout
		if connect <= 0 {
			connect = 5 * time.Second
		}
		tr := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   connect,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
		// Deadlines come from the request context; see Forward.
		b := &remoteBackend{
			baseURL:    base,
			reqTimeout: opts.RequestTimeout,
			httpClient: &http.Client{Transport: tr},
		}
		if err := b.fetchInfo(ctx); err != nil {
			return nil, err
		}
		return b, nil
	}
}

func (b *remoteBackend) fetchInfo(ctx context.Context) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/info", nil)
	if err != nil {
		return err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return ErrDependencyUnavailable("remote classifier unreachable: " + err.Error())
	}
	defer resp.Body.Close()
	if err := checkStatus("info", resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(&b.info); err != nil {
		return fmt.Errorf("info decode: %w", err)
	}
	if b.info.InputSize[0] <= 0 || b.info.InputSize[1] <= 0 {
		return fmt.Errorf("remote classifier reported invalid input size %v", b.info.InputSize)
	}
	return nil
}

func (b *remoteBackend) InputSize() (int, int) { return b.info.InputSize[0], b.info.InputSize[1] }

func (b *remoteBackend) Labels() []string { return b.info.Labels }

func (b *remoteBackend) Forward(ctx context.Context, batch []float32, n int) ([][]float32, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	w, h := b.InputSize()
	body, err := json.Marshal(remoteClassifyRequest{Batch: n, Width: w, Height: h, Pixels: batch})
	if err != nil {
		return nil, fmt.Errorf("classify marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus("classify", resp); err != nil {
		return nil, err
	}
	var out remoteClassifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("classify decode: %w", err)
	}
	return out.Logits, nil
}

func (b *remoteBackend) Close() error {
	b.httpClient.CloseIdleConnections()
	return nil
}

func (b *remoteBackend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.reqTimeout > 0 {
		return context.WithTimeout(ctx, b.reqTimeout)
	}
	return context.WithCancel(ctx)
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	const maxErr = 4096
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErr))
	return fmt.Errorf("%s %s: %s", op, resp.Status, strings.TrimSpace(string(body)))
}
