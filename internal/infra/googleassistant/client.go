// Package googleassistant speaks the embedded assistant Assist RPC: one
// config request carrying a text query, answered by a stream of audio and
// dialog state messages.
package googleassistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"text-assistant/internal/domain"
	"text-assistant/internal/infra/protoschema"
)

const DefaultEndpoint = "embeddedassistant.googleapis.com:443"

type Config struct {
	Endpoint string
	// Insecure disables TLS. Only meant for local test servers.
	Insecure         bool
	Timeout          time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Endpoint:         DefaultEndpoint,
		Timeout:          60 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

type Client struct {
	conn   *grpc.ClientConn
	schema *protoschema.Schema
	cfg    Config
	logger *slog.Logger
}

// NewClient builds the connection without network I/O. opts are applied
// after the defaults and may override them.
func NewClient(cfg Config, schema *protoschema.Schema, logger *slog.Logger, opts ...grpc.DialOption) (*Client, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}

	transportCreds := credentials.NewClientTLSFromCert(nil, "")
	if cfg.Insecure {
		transportCreds = insecure.NewCredentials()
	}

	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(transportCreds)}
	if cfg.KeepaliveTime > 0 {
		dialOpts = append(dialOpts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    cfg.KeepaliveTime,
			Timeout: cfg.KeepaliveTimeout,
		}))
	}
	dialOpts = append(dialOpts, opts...)

	conn, err := grpc.NewClient(cfg.Endpoint, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating client for %s: %w", cfg.Endpoint, err)
	}

	logger.Info("assistant client created", "endpoint", cfg.Endpoint, "tls", !cfg.Insecure)

	return &Client{
		conn:   conn,
		schema: schema,
		cfg:    cfg,
		logger: logger,
	}, nil
}

var assistStream = grpc.StreamDesc{
	StreamName:    protoschema.MethodName,
	ServerStreams: true,
	ClientStreams: true,
}

// Assist sends req and yields every response message in arrival order. The
// stream is closed when the sequence ends or the consumer stops early.
func (c *Client) Assist(ctx context.Context, cred domain.Credential, req domain.AssistRequest) iter.Seq2[domain.AssistResponse, error] {
	return func(yield func(domain.AssistResponse, error) bool) {
		msg, err := c.schema.EncodeRequest(req)
		if err != nil {
			yield(domain.AssistResponse{}, fmt.Errorf("encoding request: %w", err))
			return
		}

		var cancel context.CancelFunc
		if c.cfg.Timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		} else {
			ctx, cancel = context.WithCancel(ctx)
		}
		defer cancel()

		auth := grpc.PerRPCCredentials(bearerCredentials{
			token:  cred.AccessToken,
			secure: !c.cfg.Insecure,
		})

		stream, err := c.conn.NewStream(ctx, &assistStream, c.schema.AssistMethod(), auth)
		if err != nil {
			yield(domain.AssistResponse{}, rpcError("opening assist stream", err))
			return
		}

		if err := stream.SendMsg(msg); err != nil {
			yield(domain.AssistResponse{}, rpcError("sending request", c.recvCause(stream, err)))
			return
		}
		if err := stream.CloseSend(); err != nil {
			yield(domain.AssistResponse{}, rpcError("closing send side", err))
			return
		}

		for n := 0; ; n++ {
			resp := c.schema.NewResponse()
			err := stream.RecvMsg(resp)
			if errors.Is(err, io.EOF) {
				c.logger.Debug("assist stream finished", "messages", n)
				return
			}
			if err != nil {
				yield(domain.AssistResponse{}, rpcError("receiving response", err))
				return
			}

			decoded, err := c.schema.DecodeResponse(resp)
			if err != nil {
				yield(domain.AssistResponse{}, fmt.Errorf("decoding response: %w", err))
				return
			}
			if !yield(decoded, nil) {
				return
			}
		}
	}
}

func (c *Client) Close() error {
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("closing assistant connection: %w", err)
	}
	return nil
}

// recvCause returns the stream status when SendMsg reports io.EOF, which
// only means the server already ended the RPC.
func (c *Client) recvCause(stream grpc.ClientStream, err error) error {
	if !errors.Is(err, io.EOF) {
		return err
	}
	if rerr := stream.RecvMsg(c.schema.NewResponse()); rerr != nil && !errors.Is(rerr, io.EOF) {
		return rerr
	}
	return err
}

func rpcError(op string, err error) error {
	return fmt.Errorf("%s (%s): %w", op, status.Code(err), err)
}

// bearerCredentials attaches the OAuth access token to each RPC.
type bearerCredentials struct {
	token  string
	secure bool
}

func (b bearerCredentials) GetRequestMetadata(_ context.Context, _ ...string) (map[string]string, error) {
	if b.token == "" {
		return nil, errors.New("no access token")
	}
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}

func (b bearerCredentials) RequireTransportSecurity() bool {
	return b.secure
}
