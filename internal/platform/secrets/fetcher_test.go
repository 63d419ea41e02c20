package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()

	client := newFakeSecretClient()
	resource := "projects/patch/secrets/stripe-secret-key/versions/latest"
	client.values[resource] = "sk_test_remote\n"

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("patch"),
		WithFallbackFile(""),
		WithLogger(zap.NewNop()),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	for i := 0; i < 2; i++ {
		got, err := fetcher.Resolve(ctx, "secret://stripe-secret-key")
		if err != nil {
			t.Fatalf("Resolve call %d returned error: %v", i, err)
		}
		if got != "sk_test_remote" {
			t.Fatalf("expected trimmed remote secret, got %q", got)
		}
	}
	if calls := client.callCount(resource); calls != 1 {
		t.Fatalf("expected remote fetch once, got %d", calls)
	}
}

func TestResolveHonoursVersionAndProjectQuery(t *testing.T) {
	ctx := context.Background()

	client := newFakeSecretClient()
	resource := "projects/other/secrets/stripe-secret-key/versions/4"
	client.values[resource] = "sk_v4"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithDefaultProject("patch"), WithFallbackFile(""))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	got, err := fetcher.ResolveSecret(ctx, "secret://stripe-secret-key?version=4&project=other")
	if err != nil {
		t.Fatalf("ResolveSecret returned error: %v", err)
	}
	if got != "sk_v4" {
		t.Fatalf("expected sk_v4, got %q", got)
	}
	if calls := client.callCount(resource); calls != 1 {
		t.Fatalf("expected versioned fetch, got %d calls", calls)
	}
}

func TestResolveFallsBackWhenSecretManagerUnavailable(t *testing.T) {
	ctx := context.Background()
	path := writeLocalSecrets(t, "# dev keys\nsm://stripe-secret-key=sk_local\n")

	client := newFakeSecretClient()
	client.errors["projects/patch/secrets/stripe-secret-key/versions/latest"] = status.Error(codes.PermissionDenied, "denied")

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("patch"),
		WithFallbackFile(path),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	got, err := fetcher.Resolve(ctx, "secret://stripe-secret-key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "sk_local" {
		t.Fatalf("expected local secret, got %q", got)
	}
}

func TestResolveDoesNotFallbackOnNotFound(t *testing.T) {
	ctx := context.Background()
	path := writeLocalSecrets(t, "secret://stripe-secret-key=sk_local\n")

	client := newFakeSecretClient()
	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("patch"),
		WithFallbackFile(path),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	if _, err := fetcher.Resolve(ctx, "secret://stripe-secret-key"); err == nil {
		t.Fatal("expected error when secret is missing remotely")
	} else if status.Code(errors.Unwrap(err)) != codes.NotFound {
		t.Fatalf("expected wrapped NotFound, got %v", err)
	}
}

func TestResolveWithoutProjectUsesLocalFile(t *testing.T) {
	ctx := context.Background()
	path := writeLocalSecrets(t, "secret://stripe-secret-key=sk_local\n")

	fetcher, err := NewFetcher(ctx, WithFallbackFile(path))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	got, err := fetcher.Resolve(ctx, "secret://stripe-secret-key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "sk_local" {
		t.Fatalf("expected sk_local, got %q", got)
	}

	_, err = fetcher.Resolve(ctx, "secret://unknown")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveRejectsInvalidReferences(t *testing.T) {
	fetcher, err := NewFetcher(context.Background(), WithFallbackFile(""))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	for _, ref := range []string{"", "https://example.com/key", "secret://"} {
		if _, err := fetcher.Resolve(context.Background(), ref); err == nil {
			t.Errorf("expected error for %q", ref)
		}
	}
}

func writeLocalSecrets(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing local secrets: %v", err)
	}
	return path
}

type fakeSecretClient struct {
	mu      sync.Mutex
	values  map[string]string
	errors  map[string]error
	counter map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values:  make(map[string]string),
		errors:  make(map[string]error),
		counter: make(map[string]int),
	}
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := req.GetName()
	f.counter[name]++

	if err, ok := f.errors[name]; ok && err != nil {
		return nil, err
	}
	if value, ok := f.values[name]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{
			Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
		}, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (f *fakeSecretClient) Close() error {
	return nil
}

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter[name]
}
