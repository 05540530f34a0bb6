package entity

import "testing"

func TestTransitions_TerminalStatusesHaveNoExit(t *testing.T) {
	terminal := []BookingStatus{BookingStatusCompleted, BookingStatusRejected, BookingStatusCancelled}
	for action := range BookingTransitions {
		for _, s := range terminal {
			if CanTransition(action, s) {
				t.Fatalf("%s allowed from terminal status %s", action, s)
			}
		}
	}
}

func TestTransitions_Table(t *testing.T) {
	cases := []struct {
		action BookingAction
		from   BookingStatus
		role   ActorRole
		ok     bool
	}{
		{ActionAccept, BookingStatusPending, ActorReceiver, true},
		{ActionAccept, BookingStatusPending, ActorSender, false},
		{ActionAccept, BookingStatusAccepted, ActorReceiver, false},
		{ActionConfirmPayment, BookingStatusPaymentAuthorized, ActorSender, true},
		{ActionConfirmPayment, BookingStatusAccepted, ActorSender, false},
		{ActionCapture, BookingStatusPaymentConfirmed, ActorSystem, true},
		{ActionCapture, BookingStatusPaymentConfirmed, ActorSender, false},
		{ActionValidatePickup, BookingStatusPaid, ActorReceiver, true},
		{ActionValidatePickup, BookingStatusPaymentConfirmed, ActorReceiver, false},
		{ActionValidateDelivery, BookingStatusInTransit, ActorSender, true},
		{ActionValidateDelivery, BookingStatusInTransit, ActorReceiver, false},
		{ActionSettle, BookingStatusDelivered, ActorSystem, true},
		{ActionCancel, BookingStatusPaymentConfirmed, ActorSender, true},
		{ActionCancel, BookingStatusPaid, ActorSender, false},
		{ActionNoShow, BookingStatusPending, ActorReceiver, false},
		{ActionOpenDispute, BookingStatusDelivered, ActorReceiver, true},
		{ActionResolveDispute, BookingStatusDisputed, ActorAdmin, true},
		{ActionResolveDispute, BookingStatusDisputed, ActorSender, false},
		{ActionCreate, BookingStatusPending, ActorSender, false},
	}
	for _, c := range cases {
		got := CanTransition(c.action, c.from) && ActorAllowed(c.action, c.role)
		if got != c.ok {
			t.Fatalf("%s from %s by %s = %v, want %v", c.action, c.from, c.role, got, c.ok)
		}
	}
}

func TestBookingStatus_AtLeast(t *testing.T) {
	if !BookingStatusInTransit.AtLeast(BookingStatusPaid) {
		t.Fatal("in_transit should be at least paid")
	}
	if BookingStatusAccepted.AtLeast(BookingStatusPaid) {
		t.Fatal("accepted is not yet paid")
	}
	if BookingStatusCancelled.AtLeast(BookingStatusPending) {
		t.Fatal("cancelled is off the forward path")
	}
}

func TestBooking_TransferAmount(t *testing.T) {
	b := &Booking{ProposedPrice: 10000}
	if got := b.TransferAmount(); got != 0 {
		t.Fatalf("before acceptance = %d", got)
	}
	final := int64(12000)
	b.FinalPrice = &final
	b.CommissionAmount = 1800
	if got := b.TransferAmount(); got != 10200 {
		t.Fatalf("transfer = %d, want 10200", got)
	}
}
