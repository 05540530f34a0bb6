package entity

type BookingAction string

const (
	ActionCreate           BookingAction = "create"
	ActionAccept           BookingAction = "accept"
	ActionReject           BookingAction = "reject"
	ActionConfirmPayment   BookingAction = "confirm_payment"
	ActionCapture          BookingAction = "capture"
	ActionValidatePickup   BookingAction = "validate_pickup"
	ActionValidateDelivery BookingAction = "validate_delivery"
	ActionSettle           BookingAction = "settle"
	ActionCancel           BookingAction = "cancel"
	ActionNoShow           BookingAction = "no_show"
	ActionOpenDispute      BookingAction = "open_dispute"
	ActionResolveDispute   BookingAction = "resolve_dispute"

	// Internal saga steps of accept, never exposed as actor actions.
	ActionAuthorize    BookingAction = "authorize"
	ActionRevertAccept BookingAction = "revert_accept"
)

// ActorRole is the role an actor plays relative to one booking.
type ActorRole string

const (
	ActorSender   ActorRole = "sender"
	ActorReceiver ActorRole = "receiver"
	ActorAdmin    ActorRole = "admin"
	ActorSystem   ActorRole = "system"
)

type Transition struct {
	From   []BookingStatus
	To     BookingStatus
	Actors []ActorRole
}

// BookingTransitions is the booking lifecycle as code. Any (action, status, actor)
// triple not listed here is rejected before anything is mutated.
var BookingTransitions = map[BookingAction]Transition{
	ActionAccept: {
		From:   []BookingStatus{BookingStatusPending},
		To:     BookingStatusAccepted,
		Actors: []ActorRole{ActorReceiver},
	},
	ActionReject: {
		From:   []BookingStatus{BookingStatusPending},
		To:     BookingStatusRejected,
		Actors: []ActorRole{ActorReceiver},
	},
	ActionConfirmPayment: {
		From:   []BookingStatus{BookingStatusPaymentAuthorized},
		To:     BookingStatusPaymentConfirmed,
		Actors: []ActorRole{ActorSender, ActorSystem},
	},
	ActionCapture: {
		From:   []BookingStatus{BookingStatusPaymentConfirmed},
		To:     BookingStatusPaid,
		Actors: []ActorRole{ActorReceiver, ActorAdmin, ActorSystem},
	},
	ActionValidatePickup: {
		From:   []BookingStatus{BookingStatusPaid},
		To:     BookingStatusInTransit,
		Actors: []ActorRole{ActorReceiver},
	},
	ActionValidateDelivery: {
		From:   []BookingStatus{BookingStatusInTransit},
		To:     BookingStatusDelivered,
		Actors: []ActorRole{ActorSender},
	},
	ActionSettle: {
		From:   []BookingStatus{BookingStatusDelivered},
		To:     BookingStatusCompleted,
		Actors: []ActorRole{ActorSender, ActorAdmin, ActorSystem},
	},
	ActionCancel: {
		From: []BookingStatus{
			BookingStatusPending,
			BookingStatusAccepted,
			BookingStatusPaymentAuthorized,
			BookingStatusPaymentConfirmed,
		},
		To:     BookingStatusCancelled,
		Actors: []ActorRole{ActorSender},
	},
	ActionNoShow: {
		From: []BookingStatus{
			BookingStatusAccepted,
			BookingStatusPaymentAuthorized,
			BookingStatusPaymentConfirmed,
		},
		To:     BookingStatusCancelled,
		Actors: []ActorRole{ActorReceiver},
	},
	ActionOpenDispute: {
		From:   []BookingStatus{BookingStatusDelivered},
		To:     BookingStatusDisputed,
		Actors: []ActorRole{ActorSender, ActorReceiver, ActorAdmin},
	},
	// Resolution keeps the booking disputed; only the escrow moves.
	ActionResolveDispute: {
		From:   []BookingStatus{BookingStatusDisputed},
		To:     BookingStatusDisputed,
		Actors: []ActorRole{ActorAdmin},
	},
	ActionAuthorize: {
		From:   []BookingStatus{BookingStatusAccepted},
		To:     BookingStatusPaymentAuthorized,
		Actors: []ActorRole{ActorSystem},
	},
	ActionRevertAccept: {
		From:   []BookingStatus{BookingStatusAccepted},
		To:     BookingStatusPending,
		Actors: []ActorRole{ActorSystem},
	},
}

// CanTransition reports whether action is legal from status.
func CanTransition(action BookingAction, from BookingStatus) bool {
	t, ok := BookingTransitions[action]
	if !ok {
		return false
	}
	for _, s := range t.From {
		if s == from {
			return true
		}
	}
	return false
}

// ActorAllowed reports whether role may perform action.
func ActorAllowed(action BookingAction, role ActorRole) bool {
	t, ok := BookingTransitions[action]
	if !ok {
		return false
	}
	for _, r := range t.Actors {
		if r == role {
			return true
		}
	}
	return false
}
