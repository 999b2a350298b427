package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/armin976/noema-gateway/internal/core/domain"
	"github.com/armin976/noema-gateway/internal/core/ports"
	"github.com/armin976/noema-gateway/internal/logger"
)

// TransportDecider chooses the path to a backend for one request.
type TransportDecider interface {
	Decide(ctx context.Context, backend domain.RemoteBackend) domain.TransportDecision
}

// directDecider always chooses the direct path; used for plain HTTP backends
// and as the fallback when no selector is configured.
type directDecider struct{}

func (directDecider) Decide(context.Context, domain.RemoteBackend) domain.TransportDecision {
	return domain.Direct()
}

// tokenChannelBuffer absorbs decode bursts while the consumer catches up.
// Once full, emit blocks the decode loop until the consumer drains a token
// or its context ends; the upstream socket provides the back-pressure.
const tokenChannelBuffer = 64

// Options configures a remote chat client.
type Options struct {
	Backend  domain.RemoteBackend
	Identity Identity
	Decider  TransportDecider
	Relay    ports.RelayChannel
	Timeout  time.Duration
	Logger   *logger.StyledLogger
}

// Client is the per-backend remote chat actor. A single goroutine owns the
// backend value and the active stream; callers interact only through
// channels, so there is no shared mutable state. At most one stream is live
// at a time: starting a new one implicitly cancels its predecessor.
type Client struct {
	cmds   chan clientCmd
	closed chan struct{}
}

type clientCmd struct {
	stream  *streamCmd
	open    *streamCmd
	backend *domain.RemoteBackend
	close   bool
}

type streamCmd struct {
	ctx    context.Context
	input  ChatInput
	tokens chan Token
}

type clientState struct {
	backend    domain.RemoteBackend
	identity   Identity
	decider    TransportDecider
	relay      ports.RelayChannel
	httpClient *http.Client
	logger     *logger.StyledLogger

	activeCancel context.CancelFunc
}

func NewClient(opts Options) *Client {
	decider := opts.Decider
	if decider == nil {
		decider = directDecider{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		cmds:   make(chan clientCmd),
		closed: make(chan struct{}),
	}

	state := &clientState{
		backend:  opts.Backend,
		identity: opts.Identity,
		decider:  decider,
		relay:    opts.Relay,
		httpClient: &http.Client{
			Timeout: 0, // streams outlive any fixed deadline; per-request ctx governs
			Transport: &http.Transport{
				ResponseHeaderTimeout: timeout,
			},
		},
		logger: opts.Logger,
	}

	go c.run(state)
	return c
}

// Stream starts a generation against the current backend and returns the
// token channel for it. Any in-flight stream is cancelled first; its channel
// closes without further tokens. The returned channel always closes, with a
// TokenDone or TokenError as its last token unless the caller cancelled.
func (c *Client) Stream(ctx context.Context, input ChatInput) <-chan Token {
	tokens := make(chan Token, tokenChannelBuffer)
	cmd := clientCmd{stream: &streamCmd{ctx: ctx, input: input, tokens: tokens}}

	select {
	case c.cmds <- cmd:
	case <-c.closed:
		close(tokens)
	case <-ctx.Done():
		close(tokens)
	}
	return tokens
}

// Open starts an independent stream against the current backend. It carries
// none of Stream's session semantics: concurrent Open streams never cancel
// each other and each is governed solely by its own ctx. The LAN-to-cloud
// fallback behaves the same as for Stream.
func (c *Client) Open(ctx context.Context, input ChatInput) <-chan Token {
	tokens := make(chan Token, tokenChannelBuffer)
	cmd := clientCmd{open: &streamCmd{ctx: ctx, input: input, tokens: tokens}}

	select {
	case c.cmds <- cmd:
	case <-c.closed:
		close(tokens)
	case <-ctx.Done():
		close(tokens)
	}
	return tokens
}

// UpdateBackend swaps the backend used by subsequent streams. The active
// stream, if any, keeps the backend it started with.
func (c *Client) UpdateBackend(backend domain.RemoteBackend) {
	select {
	case c.cmds <- clientCmd{backend: &backend}:
	case <-c.closed:
	}
}

// Close cancels the active stream and stops the actor. Idempotent.
func (c *Client) Close() {
	select {
	case c.cmds <- clientCmd{close: true}:
	case <-c.closed:
	}
}

func (c *Client) run(state *clientState) {
	for cmd := range c.cmds {
		switch {
		case cmd.close:
			if state.activeCancel != nil {
				state.activeCancel()
			}
			close(c.closed)
			return
		case cmd.backend != nil:
			state.backend = *cmd.backend
		case cmd.open != nil:
			// Backend is captured here, inside the actor goroutine; the
			// spawned stream never touches state.backend again
			go runStream(cmd.open.ctx, state, state.backend, cmd.open.input, cmd.open.tokens)
		case cmd.stream != nil:
			if state.activeCancel != nil {
				state.activeCancel()
			}
			streamCtx, cancel := context.WithCancel(cmd.stream.ctx)
			state.activeCancel = cancel
			go runStream(streamCtx, state, state.backend, cmd.stream.input, cmd.stream.tokens)
		}
	}
}

// runStream drives one generation end to end on its own goroutine: decide
// the transport, issue the request, decode. A LAN relay attempt that dies
// on a transport-level error, before or after tokens started flowing, falls
// back to the cloud path exactly once, feeding the same token channel.
func runStream(ctx context.Context, state *clientState, backend domain.RemoteBackend, input ChatInput, tokens chan Token) {
	defer close(tokens)

	emit := func(tok Token) bool {
		select {
		case tokens <- tok:
			return true
		case <-ctx.Done():
			return false
		}
	}

	decision := state.decider.Decide(ctx, backend)
	if state.logger != nil {
		state.logger.InfoTransport("Opening remote stream", decision)
	}

	if decision.Kind == domain.TransportCloudRelay {
		runCloudExchange(ctx, state, backend, input, emit)
		return
	}

	err := runHTTPStream(ctx, state.httpClient, backend, decision, state.identity, input, emit)
	if err == nil || ctx.Err() != nil {
		return
	}

	var statusErr *domain.HTTPStatusError
	transportFailure := !errors.As(err, &statusErr)

	if transportFailure && backend.Type.IsRelay() && state.relay != nil {
		if state.logger != nil {
			state.logger.WarnWithBackend("LAN stream failed, falling back to cloud relay", backend.Name, "error", err)
		}
		runCloudExchange(ctx, state, backend, input, emit)
		return
	}

	emit(Token{Kind: TokenError, Err: err})
}

// OpenStream issues a single streaming request against backend over the
// given transport and decodes it onto the returned channel. Unlike the
// Client actor it carries no session state, so concurrent callers do not
// cancel each other; the channel closes when the stream ends or ctx is
// cancelled.
func OpenStream(ctx context.Context, httpClient *http.Client, backend domain.RemoteBackend, decision domain.TransportDecision, identity Identity, input ChatInput) <-chan Token {
	tokens := make(chan Token, tokenChannelBuffer)

	go func() {
		defer close(tokens)

		emit := func(tok Token) bool {
			select {
			case tokens <- tok:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if err := runHTTPStream(ctx, httpClient, backend, decision, identity, input, emit); err != nil && ctx.Err() == nil {
			emit(Token{Kind: TokenError, Err: err})
		}
	}()

	return tokens
}

// runHTTPStream performs the direct or LAN HTTP request and decodes its
// body. Every transport-level failure is returned to the caller, including
// a body read that dies mid-decode, so a relay fallback can still run.
func runHTTPStream(ctx context.Context, httpClient *http.Client, backend domain.RemoteBackend, decision domain.TransportDecision, identity Identity, input ChatInput, emit emitFunc) error {
	url := requestURL(backend, decision)
	if url == "" {
		return errors.New("no reachable address for backend")
	}

	kind := inferEndpointKind(url)
	body, err := buildRequestBody(backend, input, kind)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	applyHeaders(req, backend, decision, identity)

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, domain.MaxErrorExcerptBytes))
		return domain.NewHTTPStatusError(resp.StatusCode, excerpt)
	}

	return newStreamDecoder().run(ctx, resp.Body, emit)
}
