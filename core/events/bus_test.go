package events_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/tillstack/tillstack/core/events"
)

func TestPublish_ExactMatch(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())

	var got []events.Notification
	bus.Subscribe(events.AddonRemoved, func(ctx context.Context, n events.Notification) error {
		got = append(got, n)
		return nil
	})

	bus.Publish(context.Background(), events.Notification{
		Name:           events.AddonRemoved,
		OrganizationID: "org_1",
		Subject:        "Extra Devices",
	})
	bus.Publish(context.Background(), events.Notification{Name: events.AddonAdded})

	if len(got) != 1 {
		t.Fatalf("handler called %d times, want 1", len(got))
	}
	if got[0].OrganizationID != "org_1" || got[0].Subject != "Extra Devices" {
		t.Errorf("notification = %+v", got[0])
	}
}

func TestPublish_Wildcards(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())

	var addonCalls, allCalls int
	bus.Subscribe("addon.*", func(ctx context.Context, n events.Notification) error {
		addonCalls++
		return nil
	})
	bus.Subscribe("*", func(ctx context.Context, n events.Notification) error {
		allCalls++
		return nil
	})

	bus.Publish(context.Background(), events.Notification{Name: events.AddonAdded})
	bus.Publish(context.Background(), events.Notification{Name: events.InvoicePaid})

	if addonCalls != 1 {
		t.Errorf("addon.* calls = %d, want 1", addonCalls)
	}
	if allCalls != 2 {
		t.Errorf("* calls = %d, want 2", allCalls)
	}
}

func TestPublish_HandlerErrorDoesNotStopDelivery(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())

	var second bool
	bus.Subscribe(events.SyncFailed, func(ctx context.Context, n events.Notification) error {
		return errors.New("boom")
	})
	bus.Subscribe(events.SyncFailed, func(ctx context.Context, n events.Notification) error {
		second = true
		return nil
	})

	bus.Publish(context.Background(), events.Notification{Name: events.SyncFailed})
	if !second {
		t.Error("second handler not called after first errored")
	}
}

func TestHasSubscribers(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	if bus.HasSubscribers(events.InvoicePaid) {
		t.Error("empty bus reports subscribers")
	}

	bus.Subscribe("invoice.*", func(ctx context.Context, n events.Notification) error { return nil })
	if !bus.HasSubscribers(events.InvoicePaid) {
		t.Error("wildcard subscriber not detected")
	}
	if bus.HasSubscribers(events.AddonAdded) {
		t.Error("unrelated notification reports subscribers")
	}
}
