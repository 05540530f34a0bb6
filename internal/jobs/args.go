// Package jobs runs the background work of the booking lifecycle on River:
// notification delivery, payment reconciliation, delayed settlement and
// session cleanup.
package jobs

import (
	"parcel-share/internal/usecase"

	"github.com/google/uuid"
)

const (
	KindNotification   = "notification_delivery"
	KindReconciliation = "payment_reconciliation"
	KindSettlement     = "booking_settlement"
	KindSessionCleanup = "session_cleanup"
)

type NotificationArgs struct {
	usecase.NotificationRequest
}

func (NotificationArgs) Kind() string { return KindNotification }

type ReconciliationArgs struct {
	usecase.ReconcileRequest
}

func (ReconciliationArgs) Kind() string { return KindReconciliation }

type SettlementArgs struct {
	BookingID uuid.UUID `json:"booking_id"`
}

func (SettlementArgs) Kind() string { return KindSettlement }

type SessionCleanupArgs struct{}

func (SessionCleanupArgs) Kind() string { return KindSessionCleanup }
