package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/storefront/internal/model"
)

func validAddress() *ShippingAddressInput {
	return &ShippingAddressInput{State: "CA", Address: "1 Infinite Loop", City: "Cupertino"}
}

func validCard() *CardDetailsInput {
	return &CardDetailsInput{CardNumber: "4242424242424242", ExpiryDate: "12/26", CVV: "123"}
}

func requireValidationError(t *testing.T, err error) *ValidationError {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	return verr
}

func TestValidate_CardTruncatesNumber(t *testing.T) {
	co, err := Validate(Input{
		ShippingAddress: validAddress(),
		Payment:         PaymentInput{Method: "card", Card: validCard()},
	})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCard, co.PaymentMethod)
	require.NotNil(t, co.Card)
	assert.Equal(t, "4242", co.Card.Last4)
	assert.Equal(t, "12/26", co.Card.ExpiryDate)
	assert.Equal(t, DefaultCardType, co.Card.CardType)
	assert.Equal(t, "4242424242424242", co.CardNumber())
}

func TestValidate_CashOnDeliveryIgnoresCard(t *testing.T) {
	co, err := Validate(Input{
		ShippingAddress: validAddress(),
		Payment:         PaymentInput{Method: "cash_on_delivery"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCashOnDelivery, co.PaymentMethod)
	assert.Nil(t, co.Card)
	assert.Empty(t, co.CardNumber())
}

func TestValidate_MissingBlocks(t *testing.T) {
	_, err := Validate(Input{})
	verr := requireValidationError(t, err)
	assert.Equal(t, MsgAddressAndMethodRequired, verr.Message)
	assert.Equal(t, []string{"shipping_address", "payment_method"}, verr.Fields)

	_, err = Validate(Input{ShippingAddress: validAddress()})
	verr = requireValidationError(t, err)
	assert.Equal(t, []string{"payment_method"}, verr.Fields)
}

func TestValidate_MissingCity(t *testing.T) {
	addr := validAddress()
	addr.City = "   "
	_, err := Validate(Input{ShippingAddress: addr, Payment: PaymentInput{Method: "card", Card: validCard()}})
	verr := requireValidationError(t, err)
	assert.Equal(t, MsgAddressFieldsRequired, verr.Message)
	assert.Equal(t, []string{"shipping_address.city"}, verr.Fields)
}

func TestValidate_AddressCheckedBeforeMethod(t *testing.T) {
	_, err := Validate(Input{
		ShippingAddress: &ShippingAddressInput{},
		Payment:         PaymentInput{Method: "bitcoin"},
	})
	verr := requireValidationError(t, err)
	assert.Equal(t, MsgAddressFieldsRequired, verr.Message)
	assert.Len(t, verr.Fields, 3)
}

func TestValidate_UnknownMethod(t *testing.T) {
	_, err := Validate(Input{ShippingAddress: validAddress(), Payment: PaymentInput{Method: "paypal"}})
	verr := requireValidationError(t, err)
	assert.Equal(t, MsgInvalidPaymentMethod, verr.Message)
}

func TestValidate_CardRules(t *testing.T) {
	tests := []struct {
		name    string
		card    *CardDetailsInput
		message string
		fields  []string
	}{
		{"no card block", nil, MsgCardDetailsRequired,
			[]string{"card_details.card_number", "card_details.expiry_date", "card_details.cvv"}},
		{"missing cvv", &CardDetailsInput{CardNumber: "4242424242424242", ExpiryDate: "12/26"},
			MsgCardDetailsRequired, []string{"card_details.cvv"}},
		{"short number", &CardDetailsInput{CardNumber: "424242424242", ExpiryDate: "12/26", CVV: "123"},
			MsgInvalidCardNumber, []string{"card_details.card_number"}},
		{"long number", &CardDetailsInput{CardNumber: "42424242424242424242", ExpiryDate: "12/26", CVV: "123"},
			MsgInvalidCardNumber, []string{"card_details.card_number"}},
		{"non digit number", &CardDetailsInput{CardNumber: "4242-4242-4242-42", ExpiryDate: "12/26", CVV: "123"},
			MsgInvalidCardNumber, []string{"card_details.card_number"}},
		{"short cvv", &CardDetailsInput{CardNumber: "4242424242424242", ExpiryDate: "12/26", CVV: "12"},
			MsgInvalidCVV, []string{"card_details.cvv"}},
		{"long cvv", &CardDetailsInput{CardNumber: "4242424242424242", ExpiryDate: "12/26", CVV: "12345"},
			MsgInvalidCVV, []string{"card_details.cvv"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(Input{ShippingAddress: validAddress(), Payment: PaymentInput{Method: "card", Card: tt.card}})
			verr := requireValidationError(t, err)
			assert.Equal(t, tt.message, verr.Message)
			assert.Equal(t, tt.fields, verr.Fields)
		})
	}
}

func TestValidate_CardBoundaries(t *testing.T) {
	for _, number := range []string{"4242424242424", "4242424242424242424"} {
		for _, cvv := range []string{"123", "1234"} {
			_, err := Validate(Input{ShippingAddress: validAddress(), Payment: PaymentInput{
				Method: "card",
				Card:   &CardDetailsInput{CardNumber: number, ExpiryDate: "01/30", CVV: cvv, CardType: "debit"},
			}})
			assert.NoError(t, err, "number %s cvv %s", number, cvv)
		}
	}
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Message: MsgInvalidCVV, Fields: []string{"card_details.cvv"}}
	assert.Equal(t, "Invalid CVV (card_details.cvv)", err.Error())
	assert.Equal(t, "x", (&ValidationError{Message: "x"}).Error())
}

func TestMask(t *testing.T) {
	assert.Equal(t, "****4242", Mask(Last4("4242424242424242")))
	assert.Equal(t, "12", Last4("12"))
}

func TestSimulatedAuthorizer(t *testing.T) {
	a := SimulatedAuthorizer{}
	auth, err := a.Authorize(context.Background(), PaymentRequest{
		UserID: uuid.New(), Method: model.PaymentCard, Amount: decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	assert.True(t, auth.Approved)
	assert.NotEmpty(t, auth.Reference)
	assert.False(t, auth.AuthorizedAt.IsZero())

	auth, err = a.Authorize(context.Background(), PaymentRequest{Method: model.PaymentCashOnDelivery})
	require.NoError(t, err)
	assert.False(t, auth.Approved)
}
