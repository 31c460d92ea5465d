package serviceutil

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/otelconnect"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Returns a context that will live until Ctrl+C is pressed
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	return ctx
}

// StartHttpServer serves handler over http/1.1 and cleartext http/2 until ctx is
// done, then shuts down gracefully.
func StartHttpServer(ctx context.Context, port int, handler http.Handler) error {
	server := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		if err != nil {
			slog.Warn("failed to shut down server gracefully", "err", err)
		}
	}()

	slog.Info("listening to connect rpc...", "port", port)
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func Fatal(message string, err error) {
	slog.Error(message, "err", err.Error())
	os.Exit(1)
}

// accessTokenInterceptor attaches the access token on the client side and
// verifies it on the handler side, for unary and streaming calls alike.
type accessTokenInterceptor struct {
	accessToken string
	authHeader  string
}

var errUnauthorized = connect.NewError(connect.CodeUnauthenticated, fmt.Errorf("Unauthorized"))

func ProvideAccessTokenInterceptor(accessToken string) connect.Interceptor {
	return accessTokenInterceptor{
		accessToken: accessToken,
		authHeader:  fmt.Sprintf("Bearer %s", accessToken),
	}
}

// VerifyAccessTokenInterceptor rejects calls that do not carry accessToken, an
// empty accessToken lets every call through.
func VerifyAccessTokenInterceptor(accessToken string) connect.Interceptor {
	return accessTokenInterceptor{accessToken: accessToken}
}

func (i accessTokenInterceptor) verify(header http.Header) bool {
	if i.accessToken == "" {
		return true
	}
	token := strings.Split(header.Get("Authorization"), " ")
	if len(token) != 2 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token[1]), []byte(i.accessToken)) == 1
}

func (i accessTokenInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			if i.authHeader != "" {
				req.Header().Set("Authorization", i.authHeader)
			}
			return next(ctx, req)
		}
		if !i.verify(req.Header()) {
			return nil, errUnauthorized
		}
		return next(ctx, req)
	}
}

func (i accessTokenInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		if i.authHeader != "" {
			conn.RequestHeader().Set("Authorization", i.authHeader)
		}
		return conn
	}
}

func (i accessTokenInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if !i.verify(conn.RequestHeader()) {
			return errUnauthorized
		}
		return next(ctx, conn)
	}
}

func NewConnectOtelInterceptor() *otelconnect.Interceptor {
	otelIntercept, err := otelconnect.NewInterceptor(
		otelconnect.WithTrustRemote(),
		otelconnect.WithoutServerPeerAttributes(),
	)
	if err != nil {
		Fatal("failed to initialize otel interceptor", err)
	}
	return otelIntercept
}
