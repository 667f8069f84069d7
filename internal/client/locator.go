package client

import (
	"context"

	"github.com/dmitrijs2005/linkledger/internal/locator"
	"github.com/dmitrijs2005/linkledger/internal/wire"
)

// UpdateLocation reports the position of entity. The server records this
// endpoint as the reporter.
func (c *Client) UpdateLocation(ctx context.Context, entity string, pos locator.Position) error {
	_, err := c.Do(ctx, &wire.UpdateLocationRequest{Entity: entity, X: pos.X, Y: pos.Y, Z: pos.Z, Dimension: pos.Dimension})
	return err
}

func (c *Client) GetLocation(ctx context.Context, entity string) (locator.Entity, error) {
	var e locator.Entity
	err := c.fetch(ctx, &wire.GetLocationRequest{Entity: entity}, &e)
	return e, err
}

// FindNearby lists entities within radius of center, nearest first.
func (c *Client) FindNearby(ctx context.Context, center locator.Position, radius float64, limit int) ([]locator.Match, error) {
	var out []locator.Match
	err := c.fetch(ctx, &wire.FindNearbyRequest{
		X: center.X, Y: center.Y, Z: center.Z, Dimension: center.Dimension,
		Radius: radius, Limit: limit,
	}, &out)
	return out, err
}

func (c *Client) ListEntities(ctx context.Context) ([]locator.Entity, error) {
	var out []locator.Entity
	err := c.fetch(ctx, &wire.ListAllRequest{}, &out)
	return out, err
}

// History returns up to limit earlier positions of entity, oldest first.
func (c *Client) History(ctx context.Context, entity string, limit int) ([]locator.Sample, error) {
	var out []locator.Sample
	err := c.fetch(ctx, &wire.GetHistoryRequest{Entity: entity, Limit: limit}, &out)
	return out, err
}

func (c *Client) RemoveEntity(ctx context.Context, entity string) error {
	_, err := c.Do(ctx, &wire.RemoveEntityRequest{Entity: entity})
	return err
}

func (c *Client) fetch(ctx context.Context, req wire.Request, v any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return resp.DecodeData(v)
}
