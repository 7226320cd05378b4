package models

type OrderStatus string

const (
	OrderToPay     OrderStatus = "TO_PAY"
	OrderToShip    OrderStatus = "TO_SHIP"
	OrderToReceive OrderStatus = "TO_RECEIVE"
	OrderToRate    OrderStatus = "TO_RATE"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCancelled OrderStatus = "CANCELLED"
)

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderToPay, OrderToShip, OrderToReceive, OrderToRate, OrderCompleted, OrderCancelled:
		return true
	default:
		return false
	}
}

// Terminal orders accept no further transitions and are never synced by the
// admin payment edit.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

type Transition string

const (
	TransitionPay      Transition = "pay"
	TransitionCancel   Transition = "cancel"
	TransitionShip     Transition = "ship"
	TransitionDeliver  Transition = "deliver"
	TransitionComplete Transition = "complete"
)

// transitions is the single source of truth for order lifecycle legality:
// from_status x transition -> to_status. Anything absent is rejected.
var transitions = map[Transition]map[OrderStatus]OrderStatus{
	TransitionPay: {
		OrderToPay: OrderToShip,
	},
	TransitionCancel: {
		OrderToPay:  OrderCancelled,
		OrderToShip: OrderCancelled,
	},
	TransitionShip: {
		OrderToShip: OrderToReceive,
	},
	TransitionDeliver: {
		OrderToReceive: OrderToRate,
	},
	TransitionComplete: {
		OrderToRate: OrderCompleted,
	},
}

// NextStatus reports the status an order in `from` moves to under `t`, and
// whether the transition is legal at all.
func NextStatus(t Transition, from OrderStatus) (OrderStatus, bool) {
	to, ok := transitions[t][from]
	return to, ok
}

type PaymentMethod string

const (
	MethodCard    PaymentMethod = "CARD"
	MethodFPX     PaymentMethod = "FPX"
	MethodEWallet PaymentMethod = "E_WALLET"
	MethodCOD     PaymentMethod = "COD"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodCard, MethodFPX, MethodEWallet, MethodCOD:
		return true
	default:
		return false
	}
}

// IsBuyerInitiated reports whether the method can go through the pay
// transition. COD is confirmed at delivery instead.
func (m PaymentMethod) IsBuyerInitiated() bool {
	switch m {
	case MethodCard, MethodFPX, MethodEWallet:
		return true
	default:
		return false
	}
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSuccess   PaymentStatus = "SUCCESS"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentPending, PaymentSuccess, PaymentFailed, PaymentCancelled:
		return true
	default:
		return false
	}
}
