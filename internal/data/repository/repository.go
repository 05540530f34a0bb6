package repository

import (
	"parcel-share/pkg/database"

	"go.uber.org/zap"
)

type Repository struct {
	User                UserRepository
	Session             SessionRepository
	PayoutAccount       PayoutAccountRepository
	Trip                TripRepository
	Booking             BookingRepository
	VerificationCode    VerificationCodeRepository
	Transaction         TransactionRepository
	Escrow              EscrowRepository
	CancellationAttempt CancellationAttemptRepository
	Notification        NotificationRepository
}

// NewRepository binds every repository to db, which is either the pool or a pgx.Tx.
func NewRepository(db database.Querier, log *zap.Logger) *Repository {
	return &Repository{
		User:                NewUserRepository(db, log),
		Session:             NewSessionRepository(db, log),
		PayoutAccount:       NewPayoutAccountRepository(db, log),
		Trip:                NewTripRepository(db, log),
		Booking:             NewBookingRepository(db, log),
		VerificationCode:    NewVerificationCodeRepository(db, log),
		Transaction:         NewTransactionRepository(db, log),
		Escrow:              NewEscrowRepository(db, log),
		CancellationAttempt: NewCancellationAttemptRepository(db, log),
		Notification:        NewNotificationRepository(db, log),
	}
}
