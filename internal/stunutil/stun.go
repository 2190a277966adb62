package stunutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pion/stun/v3"
)

// ErrTimeout is returned when no binding response arrives in time.
var ErrTimeout = errors.New("stun binding timed out")

// Result is one binding round trip.
type Result struct {
	RTT    time.Duration
	Mapped string
}

// NormalizeURI accepts "host:port", "host" or a full "stun:" URI.
func NormalizeURI(server string) (*stun.URI, error) {
	uriStr := strings.TrimSpace(server)
	if uriStr == "" {
		return nil, fmt.Errorf("empty STUN server")
	}
	if !strings.HasPrefix(uriStr, "stun:") {
		uriStr = "stun:" + uriStr
	}
	return stun.ParseURI(uriStr)
}

// RoundTrip sends one binding request to server and measures the time until
// the response arrives. The mapped address reported by the server is returned
// alongside the RTT.
func RoundTrip(ctx context.Context, server string, timeout time.Duration) (Result, error) {
	uri, err := NormalizeURI(server)
	if err != nil {
		return Result{}, err
	}

	client, err := stun.DialURI(uri, &stun.DialConfig{})
	if err != nil {
		return Result{}, err
	}
	defer client.Close()

	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	result := make(chan Result, 1)
	fail := make(chan error, 1)

	start := time.Now()
	go func() {
		err := client.Do(msg, func(res stun.Event) {
			if res.Error != nil {
				fail <- res.Error
				return
			}
			rtt := time.Since(start)
			var addr stun.XORMappedAddress
			if err := addr.GetFrom(res.Message); err != nil {
				fail <- err
				return
			}
			result <- Result{RTT: rtt, Mapped: addr.String()}
		})
		if err != nil {
			fail <- err
		}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case res := <-result:
		return res, nil
	case err := <-fail:
		if errors.Is(err, stun.ErrTransactionTimeOut) {
			return Result{}, ErrTimeout
		}
		return Result{}, err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, ErrTimeout
		}
		return Result{}, ctx.Err()
	}
}
