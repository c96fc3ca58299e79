package chain

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/fablehq/fable/config"
)

// StoryRecord mirrors a story entry as the ledger reports it. Content lives
// in the content-addressed store; the record only carries addresses.
type StoryRecord struct {
	ID           uint64
	Title        string
	ContentCID   string
	CoverCID     string
	ChapterCount int
	CreatedAt    time.Time
	LastUpdate   time.Time
}

// Gateway is the typed read surface of the story ledger.
type Gateway interface {
	// ListStoriesByAuthor returns the ids of every story the address owns.
	ListStoriesByAuthor(ctx context.Context, authorAddress string) ([]uint64, error)
	// GetStory reads one story's authoritative fields by its ledger id.
	GetStory(ctx context.Context, id uint64) (*StoryRecord, error)
}

type storyPayload struct {
	Title        string `json:"title"`
	ContentCID   string `json:"content_cid"`
	CoverCID     string `json:"cover_cid"`
	ChapterCount int    `json:"chapter_count"`
	CreatedAt    int64  `json:"created_at"`
	LastUpdate   int64  `json:"last_update"`
}

// rpcGateway reads the story contract through whichever RPC endpoint answers
// the liveness probe. The working provider is cached and dropped on failure
// so the next call re-runs the fallback procedure.
type rpcGateway struct {
	conf config.ChainConfig

	mu       sync.Mutex
	provider *Provider
}

// NewGateway returns a ledger gateway backed by the configured RPC endpoints.
func NewGateway(conf config.ChainConfig) Gateway {
	return &rpcGateway{conf: conf}
}

func (g *rpcGateway) ListStoriesByAuthor(ctx context.Context, authorAddress string) ([]uint64, error) {
	var raw []string
	err := g.call(ctx, "story_listByAuthor", []interface{}{g.conf.ContractAddress, authorAddress}, &raw)
	if err != nil {
		return nil, err
	}

	ids := make([]uint64, 0, len(raw))
	for _, s := range raw {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "ledger returned malformed story id %q", s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (g *rpcGateway) GetStory(ctx context.Context, id uint64) (*StoryRecord, error) {
	var payload storyPayload
	err := g.call(ctx, "story_getById", []interface{}{g.conf.ContractAddress, strconv.FormatUint(id, 10)}, &payload)
	if err != nil {
		return nil, err
	}

	return &StoryRecord{
		ID:           id,
		Title:        payload.Title,
		ContentCID:   payload.ContentCID,
		CoverCID:     payload.CoverCID,
		ChapterCount: payload.ChapterCount,
		CreatedAt:    time.Unix(payload.CreatedAt, 0).UTC(),
		LastUpdate:   time.Unix(payload.LastUpdate, 0).UTC(),
	}, nil
}

func (g *rpcGateway) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	provider, err := g.getProvider(ctx)
	if err != nil {
		return err
	}

	if err := provider.Call(ctx, method, params, out); err != nil {
		g.dropProvider(provider)
		return err
	}
	return nil
}

func (g *rpcGateway) getProvider(ctx context.Context) (*Provider, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.provider != nil {
		return g.provider, nil
	}
	provider, err := NewProvider(ctx, g.conf)
	if err != nil {
		return nil, err
	}
	g.provider = provider
	return provider, nil
}

func (g *rpcGateway) dropProvider(failed *Provider) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.provider == failed {
		g.provider = nil
	}
}
