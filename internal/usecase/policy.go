package usecase

import (
	"time"

	"parcel-share/internal/data/entity"
	"parcel-share/pkg/utils"
)

const (
	DenialStatusNotCancellable = "status_not_cancellable"
	DenialActorNotAllowed      = "actor_not_allowed"
	DenialDeparturePassed      = "departure_passed"
	DenialRepeatCanceller      = "repeat_canceller"
)

type PolicyInput struct {
	Action             entity.BookingAction // cancel or no_show
	ActorRole          entity.ActorRole
	Status             entity.BookingStatus
	DepartureAt        time.Time
	Now                time.Time
	PriorCancellations int
}

type PolicyDecision struct {
	Allowed            bool
	DenialReason       string
	Type               entity.CancellationType
	Severity           entity.CancellationSeverity
	HoursToDeparture   float64
	RefundPercent      float64
	FeesDeducted       bool
	FeePercent         float64
	PriorCancellations int
}

// RefundAmount is what goes back to the sender out of principal, never negative.
func (d PolicyDecision) RefundAmount(principal int64) int64 {
	if !d.Allowed {
		return 0
	}
	refund := utils.PercentOf(principal, d.RefundPercent)
	if d.FeesDeducted {
		refund -= utils.PercentOf(principal, d.FeePercent)
	}
	if refund < 0 {
		return 0
	}
	return refund
}

// Policy decides whether a booking may be cancelled and at what cost.
type Policy struct {
	LateCancelHours   int
	SevereCancelHours int
	FeePercent        float64
	MaxCancellations  int
}

func NewPolicy(cfg utils.BookingConfig) Policy {
	return Policy{
		LateCancelHours:   cfg.LateCancelHours,
		SevereCancelHours: cfg.SevereCancelHours,
		FeePercent:        cfg.CancellationFeePercent,
		MaxCancellations:  cfg.MaxCancellations,
	}
}

func (p Policy) Evaluate(in PolicyInput) PolicyDecision {
	hours := in.DepartureAt.Sub(in.Now).Hours()
	d := PolicyDecision{
		HoursToDeparture:   hours,
		Severity:           p.Severity(hours),
		FeePercent:         p.FeePercent,
		PriorCancellations: in.PriorCancellations,
	}

	if in.Action == entity.ActionNoShow {
		d.Type = entity.CancellationTypeNoShow
		switch {
		case !entity.CanTransition(entity.ActionNoShow, in.Status):
			d.DenialReason = DenialStatusNotCancellable
		case !entity.ActorAllowed(entity.ActionNoShow, in.ActorRole):
			d.DenialReason = DenialActorNotAllowed
		default:
			d.Allowed = true
		}
		return d
	}

	d.Type = entity.CancellationTypeEarly
	if hours < float64(p.LateCancelHours) {
		d.Type = entity.CancellationTypeLate
	}

	switch {
	case !entity.CanTransition(entity.ActionCancel, in.Status):
		d.DenialReason = DenialStatusNotCancellable
	case !entity.ActorAllowed(entity.ActionCancel, in.ActorRole):
		d.DenialReason = DenialActorNotAllowed
	case hours <= 0:
		d.DenialReason = DenialDeparturePassed
	case p.MaxCancellations > 0 && in.PriorCancellations >= p.MaxCancellations:
		d.DenialReason = DenialRepeatCanceller
	}
	if d.DenialReason != "" {
		return d
	}

	d.Allowed = true
	d.RefundPercent = 100
	// Before confirmation the hold is released whole; the late penalty and
	// fees only apply once the sender's money is committed.
	if in.Status == entity.BookingStatusPaymentConfirmed {
		if d.Type == entity.CancellationTypeLate {
			d.RefundPercent = 50
		}
		d.FeesDeducted = true
	}
	return d
}

// Severity classifies hours to departure for admin reporting.
func (p Policy) Severity(hours float64) entity.CancellationSeverity {
	switch {
	case hours > float64(p.SevereCancelHours):
		return entity.SeverityLow
	case hours >= float64(p.LateCancelHours):
		return entity.SeverityMedium
	default:
		return entity.SeverityHigh
	}
}
