package amcp

import (
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"sync"
)

// OSCSubscriptions keeps the OSC destinations clients asked for with OSC SUBSCRIBE. Each
// destination is reference counted, so two subscriptions to the same address and port need two
// unsubscriptions. It only does the bookkeeping; sending is left to whoever reads Destinations.
type OSCSubscriptions struct {
	logger *slog.Logger

	mu    sync.Mutex
	count map[string]int
}

// OSCOption represents the options for the OSCSubscriptions.
type OSCOption func(*OSCSubscriptions)

// NewOSCSubscriptions creates an empty subscription table.
func NewOSCSubscriptions(options ...OSCOption) *OSCSubscriptions {
	o := &OSCSubscriptions{
		logger: slog.Default(),
		count:  make(map[string]int),
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// WithOSCLogger sets the logger for the subscription table.
func WithOSCLogger(logger *slog.Logger) OSCOption {
	return func(o *OSCSubscriptions) {
		o.logger = logger.With(
			slog.String("package", "go-amcp"),
			slog.String("component", "osc"),
		)
	}
}

// Subscribe implements the OSCSender interface.
func (o *OSCSubscriptions) Subscribe(address string, port int) error {
	dest, err := oscDestination(address, port)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.count[dest]++
	o.logger.Info("osc subscribed", slog.String("destination", dest), slog.Int("count", o.count[dest]))
	return nil
}

// Unsubscribe implements the OSCSender interface.
func (o *OSCSubscriptions) Unsubscribe(address string, port int) error {
	dest, err := oscDestination(address, port)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.count[dest] == 0 {
		return fmt.Errorf("no subscription for %s", dest)
	}
	o.count[dest]--
	if o.count[dest] == 0 {
		delete(o.count, dest)
	}
	o.logger.Info("osc unsubscribed", slog.String("destination", dest))
	return nil
}

// Destinations returns the subscribed "host:port" destinations, sorted.
func (o *OSCSubscriptions) Destinations() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	dests := make([]string, 0, len(o.count))
	for dest := range o.count {
		dests = append(dests, dest)
	}
	slices.Sort(dests)
	return dests
}

func oscDestination(address string, port int) (string, error) {
	if address == "" {
		return "", fmt.Errorf("empty osc address")
	}
	if port < 1 || port > 65535 {
		return "", fmt.Errorf("invalid osc port %d", port)
	}
	return net.JoinHostPort(address, strconv.Itoa(port)), nil
}
