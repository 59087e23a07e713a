package service

import (
	"context"

	"connectrpc.com/connect"
)

// Client calls a Service running in another process.
type Client struct {
	fetch       *connect.Client[FetchRequest, FetchResponse]
	shouldStop  *connect.Client[StopRequest, ShouldStopResponse]
	requestStop *connect.Client[StopRequest, RequestStopResponse]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) Client {
	opts = append(opts, connect.WithCodec(jsonCodec{}))
	return Client{
		fetch:       connect.NewClient[FetchRequest, FetchResponse](httpClient, baseURL+FetchProcedure, opts...),
		shouldStop:  connect.NewClient[StopRequest, ShouldStopResponse](httpClient, baseURL+ShouldStopProcedure, opts...),
		requestStop: connect.NewClient[StopRequest, RequestStopResponse](httpClient, baseURL+RequestStopProcedure, opts...),
	}
}

func (c Client) Fetch(ctx context.Context, req FetchRequest) (*FetchResponse, error) {
	res, err := c.fetch.CallUnary(ctx, connect.NewRequest(&req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c Client) ShouldStop(ctx context.Context, channel, command string) (bool, error) {
	res, err := c.shouldStop.CallUnary(ctx, connect.NewRequest(&StopRequest{
		Channel: channel,
		Command: command,
	}))
	if err != nil {
		return false, err
	}
	return res.Msg.Stop, nil
}

func (c Client) RequestStop(ctx context.Context, channel, command string) (bool, error) {
	res, err := c.requestStop.CallUnary(ctx, connect.NewRequest(&StopRequest{
		Channel: channel,
		Command: command,
	}))
	if err != nil {
		return false, err
	}
	return res.Msg.Running, nil
}
