package http

import (
	"fmt"
	"log/slog"
	"net"
)

// ListenCallback opens the listener for the OAuth callback endpoint. The
// bind address must be loopback — the one-time state token is the only
// CSRF defense, so the callback must never be reachable from the network.
// If the primary port is occupied, the fallback range is probed in order.
func ListenCallback(cfg CallbackConfig) (net.Listener, int, error) {
	bind := cfg.Bind
	if bind == "" {
		bind = "127.0.0.1"
	}

	ip := net.ParseIP(bind)
	if ip == nil || !ip.IsLoopback() {
		return nil, 0, fmt.Errorf("callback bind address %q is not a loopback address", bind)
	}

	ports := []int{cfg.Port}
	for p := cfg.FallbackStart; p > 0 && p <= cfg.FallbackEnd; p++ {
		if p != cfg.Port {
			ports = append(ports, p)
		}
	}

	var lastErr error
	for _, port := range ports {
		listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", bind, port))
		if err != nil {
			lastErr = err
			continue
		}
		if port != cfg.Port {
			slog.Warn("Callback port occupied, using fallback",
				"primary_port", cfg.Port,
				"port", port)
		}
		return listener, port, nil
	}

	return nil, 0, fmt.Errorf("no available callback port (primary %d, fallback %d-%d): %w",
		cfg.Port, cfg.FallbackStart, cfg.FallbackEnd, lastErr)
}
