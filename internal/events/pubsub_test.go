package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func pstestOptions(srv *pstest.Server) []option.ClientOption {
	return []option.ClientOption{
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	}
}

func samplePaymentCreated() PaymentCreated {
	return PaymentCreated{
		OrderRef:        "01J9ZORDERREF",
		PaymentIntentID: "pi_123",
		PackageID:       "classic",
		PackageName:     "Classic Patch Package",
		CatalogVersion:  "2025-autumn.1",
		Amount:          34000,
		Currency:        "usd",
		Customizations:  map[string]string{"setup": "setup-service"},
		CustomerEmail:   "ada@example.com",
		CreatedAt:       time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestPubSubPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project", pstestOptions(srv)...)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "storefront-payments")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubPublisher: %v", err)
	}
	defer publisher.Close()

	event := samplePaymentCreated()
	if err := publisher.PublishPaymentCreated(ctx, event); err != nil {
		t.Fatalf("PublishPaymentCreated: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload PaymentCreated
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderRef != event.OrderRef || payload.Amount != 34000 {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["orderRef"]; attr != event.OrderRef {
		t.Fatalf("expected orderRef attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["eventType"]; attr != TypePaymentCreated {
		t.Fatalf("expected eventType attribute, got %q", attr)
	}
	if _, ok := messages[0].Attributes["customerEmail"]; ok {
		t.Fatalf("customer email must not be an attribute")
	}
}

func TestNewPubSubPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}

func TestOpenSinkPubSub(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	admin, err := pubsub.NewClient(ctx, "test-project", pstestOptions(srv)...)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = admin.Close()
	}()
	if _, err := admin.CreateTopic(ctx, "payments"); err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	sink, err := OpenSink(ctx, SinkConfig{
		Sink:          "pubsub://test-project/payments",
		PubSubOptions: pstestOptions(srv),
	})
	if err != nil {
		t.Fatalf("OpenSink: %v", err)
	}
	if sink.Kind != "pubsub" {
		t.Fatalf("expected pubsub sink, got %q", sink.Kind)
	}
	if err := sink.Publisher.PublishPaymentCreated(ctx, samplePaymentCreated()); err != nil {
		t.Fatalf("PublishPaymentCreated: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := len(srv.Messages()); got != 1 {
		t.Fatalf("expected 1 message, got %d", got)
	}
}
