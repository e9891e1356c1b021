package simulated

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// Handler returns the JSON-RPC api of the backend over HTTP. Every request
// is counted, see Requests.
func (b *Backend) Handler() (http.Handler, *rpc.Server, error) {
	server := rpc.NewServer()
	apis := map[string]any{
		"eth": &ethAPI{b: b},
		"zd":  &zdAPI{b: b},
		"pm":  &pmAPI{b: b},
	}
	for namespace, api := range apis {
		if err := server.RegisterName(namespace, api); err != nil {
			return nil, nil, fmt.Errorf("error registering %s api: %w", namespace, err)
		}
	}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)
		server.ServeHTTP(w, r)
	})
	return handler, server, nil
}

// Server serves a backend on a local address.
type Server struct {
	*Backend
	rpc      *rpc.Server
	http     *http.Server
	listener net.Listener
}

// NewServer starts serving backend on addr, e.g. "127.0.0.1:0".
func NewServer(backend *Backend, addr string) (*Server, error) {
	handler, rpcServer, err := backend.Handler()
	if err != nil {
		return nil, err
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("error listening on %s: %w", addr, err)
	}
	s := &Server{
		Backend:  backend,
		rpc:      rpcServer,
		http:     &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second},
		listener: listener,
	}
	go func() {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			backend.logger.Error("simulated chain stopped", zap.Error(err))
		}
	}()
	backend.logger.Info("simulated chain listening",
		zap.String("url", s.URL()),
		zap.String("chainId", backend.chainId.String()),
	)
	return s, nil
}

// URL is the http endpoint for node, bundler and paymaster calls.
func (s *Server) URL() string {
	return "http://" + s.listener.Addr().String()
}

func (s *Server) Close() error {
	s.rpc.Stop()
	return s.http.Close()
}
