package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fablehq/fable/config"
)

func rpcResponder(handlers map[string]func(params []interface{}) (interface{}, error)) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		var rpcReq rpcRequest
		if err := json.NewDecoder(req.Body).Decode(&rpcReq); err != nil {
			return httpmock.NewStringResponse(400, "bad request"), nil
		}

		handler, ok := handlers[rpcReq.Method]
		if !ok {
			return httpmock.NewJsonResponse(200, map[string]interface{}{
				"jsonrpc": "2.0", "id": rpcReq.ID,
				"error": map[string]interface{}{"code": -32601, "message": "method not found"},
			})
		}

		result, err := handler(rpcReq.Params)
		if err != nil {
			return httpmock.NewJsonResponse(200, map[string]interface{}{
				"jsonrpc": "2.0", "id": rpcReq.ID,
				"error": map[string]interface{}{"code": -32000, "message": err.Error()},
			})
		}
		return httpmock.NewJsonResponse(200, map[string]interface{}{
			"jsonrpc": "2.0", "id": rpcReq.ID, "result": result,
		})
	}
}

func livenessHandlers() map[string]func(params []interface{}) (interface{}, error) {
	return map[string]func(params []interface{}) (interface{}, error){
		"net_version":     func([]interface{}) (interface{}, error) { return "137", nil },
		"eth_blockNumber": func([]interface{}) (interface{}, error) { return "0x1a2b3c", nil },
	}
}

func TestNewProviderFallsBackToLiveEndpoint(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://dead.rpc.test",
		httpmock.NewErrorResponder(assert.AnError))
	httpmock.RegisterResponder("POST", "https://live.rpc.test",
		rpcResponder(livenessHandlers()))

	provider, err := NewProvider(context.Background(), config.ChainConfig{
		RpcEndpoints: []string{"https://dead.rpc.test", "https://live.rpc.test"},
		NetworkID:    "137",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://live.rpc.test", provider.endpoint)
}

func TestNewProviderSkipsWrongNetwork(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	wrongNet := livenessHandlers()
	wrongNet["net_version"] = func([]interface{}) (interface{}, error) { return "1", nil }

	httpmock.RegisterResponder("POST", "https://mainnet.rpc.test", rpcResponder(wrongNet))
	httpmock.RegisterResponder("POST", "https://polygon.rpc.test", rpcResponder(livenessHandlers()))

	provider, err := NewProvider(context.Background(), config.ChainConfig{
		RpcEndpoints: []string{"https://mainnet.rpc.test", "https://polygon.rpc.test"},
		NetworkID:    "137",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://polygon.rpc.test", provider.endpoint)
}

func TestNewProviderFailsWhenNoEndpointAnswers(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://dead1.rpc.test",
		httpmock.NewErrorResponder(assert.AnError))
	httpmock.RegisterResponder("POST", "https://dead2.rpc.test",
		httpmock.NewStringResponder(503, "unavailable"))

	_, err := NewProvider(context.Background(), config.ChainConfig{
		RpcEndpoints: []string{"https://dead1.rpc.test", "https://dead2.rpc.test"},
	})
	assert.Error(t, err)
}

func TestGatewayListStoriesByAuthor(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	handlers := livenessHandlers()
	handlers["story_listByAuthor"] = func(params []interface{}) (interface{}, error) {
		require.Len(t, params, 2)
		assert.Equal(t, "0xcontract", params[0])
		assert.Equal(t, "0xauthor", params[1])
		return []string{"7", "9"}, nil
	}
	httpmock.RegisterResponder("POST", "https://live.rpc.test", rpcResponder(handlers))

	gateway := NewGateway(config.ChainConfig{
		RpcEndpoints:    []string{"https://live.rpc.test"},
		ContractAddress: "0xcontract",
		NetworkID:       "137",
	})

	ids, err := gateway.ListStoriesByAuthor(context.Background(), "0xauthor")
	require.NoError(t, err)
	assert.Equal(t, []uint64{7, 9}, ids)
}

func TestGatewayGetStory(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	handlers := livenessHandlers()
	handlers["story_getById"] = func(params []interface{}) (interface{}, error) {
		require.Len(t, params, 2)
		assert.Equal(t, "7", params[1])
		return storyPayload{
			Title:        "The Long Road",
			ContentCID:   "QmContent",
			CoverCID:     "QmCover",
			ChapterCount: 12,
			CreatedAt:    1700000000,
			LastUpdate:   1700086400,
		}, nil
	}
	httpmock.RegisterResponder("POST", "https://live.rpc.test", rpcResponder(handlers))

	gateway := NewGateway(config.ChainConfig{
		RpcEndpoints: []string{"https://live.rpc.test"},
		NetworkID:    "137",
	})

	story, err := gateway.GetStory(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), story.ID)
	assert.Equal(t, "The Long Road", story.Title)
	assert.Equal(t, "QmContent", story.ContentCID)
	assert.Equal(t, 12, story.ChapterCount)
	assert.Equal(t, int64(1700000000), story.CreatedAt.Unix())
}

func TestGatewayDropsProviderOnFailure(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	failing := true
	handlers := livenessHandlers()
	handlers["story_listByAuthor"] = func(params []interface{}) (interface{}, error) {
		if failing {
			return nil, assert.AnError
		}
		return []string{"3"}, nil
	}
	httpmock.RegisterResponder("POST", "https://live.rpc.test", rpcResponder(handlers))

	g := NewGateway(config.ChainConfig{
		RpcEndpoints: []string{"https://live.rpc.test"},
		NetworkID:    "137",
	}).(*rpcGateway)

	_, err := g.ListStoriesByAuthor(context.Background(), "0xauthor")
	require.Error(t, err)
	assert.Nil(t, g.provider, "failed provider must be dropped so the next call re-probes")

	failing = false
	ids, err := g.ListStoriesByAuthor(context.Background(), "0xauthor")
	require.NoError(t, err)
	assert.Equal(t, []uint64{3}, ids)
}
