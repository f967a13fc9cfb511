package pagofacil

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CallbackPayload is what the gateway POSTs to our callback URL.
// PedidoID carries our payment number.
type CallbackPayload struct {
	PedidoID   FlexString          `json:"PedidoID"`
	Fecha      string              `json:"Fecha"`
	Hora       string              `json:"Hora"`
	MetodoPago FlexString          `json:"MetodoPago"`
	Estado     FlexString          `json:"Estado"`
	Monto      decimal.NullDecimal `json:"Monto"`
}

// Reference returns the trimmed payment number
func (p CallbackPayload) Reference() string {
	return strings.TrimSpace(p.PedidoID.String())
}

// CallbackAck is the body the gateway expects back
type CallbackAck struct {
	Error   int    `json:"error"`
	Status  int    `json:"status"`
	Message string `json:"message"`
	Values  bool   `json:"values"`
}

// Ack builds a positive acknowledgement
func Ack(message string) CallbackAck {
	return CallbackAck{Error: 0, Status: 1, Message: message, Values: true}
}

// Nack builds a negative acknowledgement
func Nack(message string) CallbackAck {
	return CallbackAck{Error: 1, Status: 0, Message: message, Values: false}
}
