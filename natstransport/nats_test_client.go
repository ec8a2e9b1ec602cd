//go:build integration

package natstransport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestBroker launches a throwaway NATS broker in a container for
// integration tests. Callers get back a Config pre-populated with the
// container's URL; Cleanup tears the container down when t completes.
type TestBroker struct {
	container testcontainers.Container
	URL       string
}

// TestOption customizes a StartTestBroker call.
type TestOption func(*testcontainers.ContainerRequest)

// WithImage overrides the NATS image tag the test broker runs.
func WithImage(image string) TestOption {
	return func(req *testcontainers.ContainerRequest) { req.Image = image }
}

// StartTestBroker starts a NATS container and returns a TestBroker
// wired to it, registering a t.Cleanup to terminate the container.
func StartTestBroker(t *testing.T, opts ...TestOption) *TestBroker {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "nats:2.10-alpine",
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForLog("Server is ready"),
	}
	for _, opt := range opts {
		opt(&req)
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("natstransport: start test broker: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("natstransport: resolve test broker host: %v", err)
	}
	port, err := container.MappedPort(ctx, "4222/tcp")
	if err != nil {
		t.Fatalf("natstransport: resolve test broker port: %v", err)
	}

	tb := &TestBroker{container: container, URL: fmt.Sprintf("nats://%s:%s", host, port.Port())}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(stopCtx)
	})
	return tb
}

// Config returns a natstransport.Config pointed at this test broker,
// merging in the given subscriptions and publish subject.
func (tb *TestBroker) Config(subs []Subscription, publishSubject string) Config {
	return Config{
		URL:                 tb.URL,
		Subscriptions:       subs,
		FixedPublishSubject: publishSubject,
		MaxConnectAttempts:  10,
		ConnectTimeWait:     500 * time.Millisecond,
	}
}
