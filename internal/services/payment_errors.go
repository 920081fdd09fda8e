package services

import "net/http"

// Operation error codes. Every failure leaving the payment service carries
// one of these so the HTTP layer can map it without string matching.
const (
	CodeInvalidRequest         = "invalid_request"
	CodeInsufficientFunds      = "insufficient_funds"
	CodeRecipientHasNoCard     = "recipient_has_no_card"
	CodePaymentDeclined        = "payment_declined"
	CodeGatewayUnavailable     = "gateway_unavailable"
	CodeProcessingFailed       = "payment_processing_failed"
	CodeReconciliationRequired = "reconciliation_required"
)

// OpError is a payment operation failure with a machine-readable code and a
// human-readable message. Sensitive values never go into Message.
type OpError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *OpError) Error() string {
	return e.Code + ": " + e.Message
}

// HTTPStatus maps the error code onto the response status
func (e *OpError) HTTPStatus() int {
	switch e.Code {
	case CodeInvalidRequest, CodeInsufficientFunds, CodeRecipientHasNoCard, CodePaymentDeclined:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func invalidRequest(message string) *OpError {
	return &OpError{Code: CodeInvalidRequest, Message: message}
}

func insufficientFunds() *OpError {
	return &OpError{Code: CodeInsufficientFunds, Message: "Insufficient funds on the selected card"}
}

func recipientHasNoCard() *OpError {
	return &OpError{Code: CodeRecipientHasNoCard, Message: "Recipient has no card to receive the transfer"}
}

func paymentDeclined(gatewayMessage string) *OpError {
	if gatewayMessage == "" {
		gatewayMessage = "Payment was declined"
	}
	return &OpError{Code: CodePaymentDeclined, Message: gatewayMessage}
}

func gatewayUnavailable() *OpError {
	return &OpError{Code: CodeGatewayUnavailable, Message: "Payment gateway is not available"}
}

func processingFailed() *OpError {
	return &OpError{Code: CodeProcessingFailed, Message: "Payment processing failed"}
}

func reconciliationRequired() *OpError {
	return &OpError{Code: CodeReconciliationRequired, Message: "Payment was charged but the ledger update failed; manual reconciliation required"}
}
