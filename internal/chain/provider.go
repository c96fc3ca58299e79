package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fablehq/fable/config"
)

const probeTimeout = 10 * time.Second

// Provider is a connected JSON-RPC handle to a ledger node.
type Provider struct {
	endpoint string
	client   *http.Client
	nextID   atomic.Int64
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// NewProvider runs the fallback procedure over the prioritized endpoint list
// and returns the first provider that answers the liveness probe (network id
// plus current block height). When a network id is configured, endpoints on
// the wrong network are skipped.
func NewProvider(ctx context.Context, conf config.ChainConfig) (*Provider, error) {
	for _, endpoint := range conf.RpcEndpoints {
		p := &Provider{
			endpoint: endpoint,
			client:   &http.Client{Timeout: probeTimeout, Transport: http.DefaultTransport},
		}

		netID, err := p.NetworkID(ctx)
		if err != nil {
			logrus.Warnf("chain endpoint %s failed network probe: %v", endpoint, err)
			continue
		}
		if conf.NetworkID != "" && netID != conf.NetworkID {
			logrus.Warnf("chain endpoint %s is on network %s, want %s", endpoint, netID, conf.NetworkID)
			continue
		}
		if _, err := p.BlockNumber(ctx); err != nil {
			logrus.Warnf("chain endpoint %s failed block height probe: %v", endpoint, err)
			continue
		}

		logrus.Infof("using chain endpoint %s (network %s)", endpoint, netID)
		return p, nil
	}
	return nil, errors.New("no chain RPC endpoint answered the liveness probe")
}

// NetworkID returns the node's network identifier.
func (p *Provider) NetworkID(ctx context.Context) (string, error) {
	var id string
	if err := p.Call(ctx, "net_version", nil, &id); err != nil {
		return "", err
	}
	return id, nil
}

// BlockNumber returns the node's current block height.
func (p *Provider) BlockNumber(ctx context.Context) (uint64, error) {
	var hexHeight string
	if err := p.Call(ctx, "eth_blockNumber", nil, &hexHeight); err != nil {
		return 0, err
	}
	height, err := strconv.ParseUint(strings.TrimPrefix(hexHeight, "0x"), 16, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "unexpected block height %q", hexHeight)
	}
	return height, nil
}

// Call performs a single JSON-RPC call against the node and decodes the
// result into out.
func (p *Provider) Call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      p.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.Error(err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("rpc endpoint returned status %d", resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return errors.Wrap(err, "decoding rpc response")
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return json.Unmarshal(rpcResp.Result, out)
}
