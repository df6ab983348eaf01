// Package checkout validates the shipping and payment data a shopper submits
// when placing an order, and redacts card data before it reaches storage.
package checkout

import (
	"fmt"
	"strings"

	"github.com/flicky/storefront/internal/model"
)

const (
	MsgAddressAndMethodRequired = "Shipping address and payment method are required"
	MsgAddressFieldsRequired    = "State, address, and city are required"
	MsgInvalidPaymentMethod     = `Payment method must be "card" or "cash_on_delivery"`
	MsgCardDetailsRequired      = "Card details are required for card payment"
	MsgInvalidCardNumber        = "Invalid card number"
	MsgInvalidCVV               = "Invalid CVV"

	DefaultCardType = "credit"
)

// ValidationError reports which input fields violated a checkout rule.
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(e.Fields, ", "))
}

func invalid(msg string, fields ...string) *ValidationError {
	return &ValidationError{Fields: fields, Message: msg}
}

type ShippingAddressInput struct {
	State   string
	Address string
	City    string
}

type CardDetailsInput struct {
	CardNumber string
	ExpiryDate string
	CVV        string
	CardType   string
}

type PaymentInput struct {
	Method string
	Card   *CardDetailsInput
}

// Input is everything the shopper submits at checkout. A nil
// ShippingAddress means the block was absent.
type Input struct {
	ShippingAddress *ShippingAddressInput
	Payment         PaymentInput
}

// Checkout is validated, redacted checkout data ready to be put on an order.
type Checkout struct {
	ShippingAddress model.ShippingAddress
	PaymentMethod   model.PaymentMethod
	Card            *model.CardDetails
	// cardNumber is kept in memory only so the payment authorizer can see it.
	cardNumber string
}

// CardNumber returns the full card number for authorization. It is never persisted.
func (c Checkout) CardNumber() string { return c.cardNumber }

// Validate checks the input one field group at a time and stops at the first
// failing group: presence, address fields, payment method, card fields.
func Validate(in Input) (Checkout, error) {
	method := strings.TrimSpace(in.Payment.Method)
	if in.ShippingAddress == nil || method == "" {
		var fields []string
		if in.ShippingAddress == nil {
			fields = append(fields, "shipping_address")
		}
		if method == "" {
			fields = append(fields, "payment_method")
		}
		return Checkout{}, invalid(MsgAddressAndMethodRequired, fields...)
	}

	addr := model.ShippingAddress{
		State:   strings.TrimSpace(in.ShippingAddress.State),
		Address: strings.TrimSpace(in.ShippingAddress.Address),
		City:    strings.TrimSpace(in.ShippingAddress.City),
	}
	if missing := missingAddressFields(addr); len(missing) > 0 {
		return Checkout{}, invalid(MsgAddressFieldsRequired, missing...)
	}

	pm := model.PaymentMethod(method)
	if !pm.Valid() {
		return Checkout{}, invalid(MsgInvalidPaymentMethod, "payment_method")
	}

	out := Checkout{ShippingAddress: addr, PaymentMethod: pm}
	if pm != model.PaymentCard {
		return out, nil
	}

	card, err := validateCard(in.Payment.Card)
	if err != nil {
		return Checkout{}, err
	}
	out.Card = &model.CardDetails{
		Last4:      Last4(card.CardNumber),
		ExpiryDate: card.ExpiryDate,
		CardType:   card.CardType,
	}
	out.cardNumber = card.CardNumber
	return out, nil
}

func missingAddressFields(a model.ShippingAddress) []string {
	var missing []string
	if a.State == "" {
		missing = append(missing, "shipping_address.state")
	}
	if a.Address == "" {
		missing = append(missing, "shipping_address.address")
	}
	if a.City == "" {
		missing = append(missing, "shipping_address.city")
	}
	return missing
}

func validateCard(in *CardDetailsInput) (CardDetailsInput, error) {
	var card CardDetailsInput
	if in != nil {
		card = CardDetailsInput{
			CardNumber: strings.TrimSpace(in.CardNumber),
			ExpiryDate: strings.TrimSpace(in.ExpiryDate),
			CVV:        strings.TrimSpace(in.CVV),
			CardType:   strings.TrimSpace(in.CardType),
		}
	}

	var missing []string
	if card.CardNumber == "" {
		missing = append(missing, "card_details.card_number")
	}
	if card.ExpiryDate == "" {
		missing = append(missing, "card_details.expiry_date")
	}
	if card.CVV == "" {
		missing = append(missing, "card_details.cvv")
	}
	if len(missing) > 0 {
		return CardDetailsInput{}, invalid(MsgCardDetailsRequired, missing...)
	}

	if n := len(card.CardNumber); n < 13 || n > 19 || !digits(card.CardNumber) {
		return CardDetailsInput{}, invalid(MsgInvalidCardNumber, "card_details.card_number")
	}
	if n := len(card.CVV); n < 3 || n > 4 || !digits(card.CVV) {
		return CardDetailsInput{}, invalid(MsgInvalidCVV, "card_details.cvv")
	}
	if card.CardType == "" {
		card.CardType = DefaultCardType
	}
	return card, nil
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Last4 returns the last four characters of a card number.
func Last4(number string) string {
	if len(number) <= 4 {
		return number
	}
	return number[len(number)-4:]
}

// Mask renders stored last-four digits for display, e.g. "****4242".
func Mask(last4 string) string {
	return "****" + last4
}
