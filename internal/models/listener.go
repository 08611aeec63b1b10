/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import (
	"encoding/json"
	"time"
)

const (
	OperationTypePayment = "payment"
	AssetTypeNative      = "native"
)

// InboundEvent is one operation record observed on the custodian's payment
// stream. It is either a PaymentEvent or an OtherEvent.
type InboundEvent interface {
	Cursor() string
	RawJSON() json.RawMessage
	inboundEvent()
}

// PaymentEvent is a decoded payment operation; it is also the queue wire format
type PaymentEvent struct {
	OperationId     string          `json:"id"`
	PagingToken     string          `json:"paging_token"`
	TransactionHash string          `json:"transaction_hash"`
	Type            string          `json:"type"`
	AssetType       string          `json:"asset_type"`
	From            string          `json:"from"`
	To              string          `json:"to"`
	ToMuxed         string          `json:"to_muxed,omitempty"`
	ToMuxedId       string          `json:"to_muxed_id,omitempty"`
	Amount          string          `json:"amount"`
	CreatedAt       time.Time       `json:"created_at"`
	Raw             json.RawMessage `json:"-"`
}

func (e PaymentEvent) Cursor() string           { return e.PagingToken }
func (e PaymentEvent) RawJSON() json.RawMessage { return e.Raw }
func (PaymentEvent) inboundEvent()              {}

// OtherEvent is any non-payment operation (create_account, path payments, ...)
type OtherEvent struct {
	OperationId     string          `json:"id"`
	PagingToken     string          `json:"paging_token"`
	TransactionHash string          `json:"transaction_hash"`
	Type            string          `json:"type"`
	Raw             json.RawMessage `json:"-"`
}

func (e OtherEvent) Cursor() string           { return e.PagingToken }
func (e OtherEvent) RawJSON() json.RawMessage { return e.Raw }
func (OtherEvent) inboundEvent()              {}

// StreamMessage is one delivery from the payment stream; it may bundle records
type StreamMessage struct {
	Records    []InboundEvent
	ReceivedAt time.Time
}

// RelayStatus is a point-in-time snapshot of the relay's operational state
type RelayStatus struct {
	AccountId             string            `json:"account_id"`
	MessageCount          int64             `json:"message_count"`
	RecordCount           int64             `json:"record_count"`
	RelayCount            int64             `json:"relay_count"`
	ErrorCount            int64             `json:"error_count"`
	LastErrorAt           *time.Time        `json:"last_error_at,omitempty"`
	LastMessageReceivedAt *time.Time        `json:"last_message_received_at,omitempty"`
	LastMessageRelayedAt  *time.Time        `json:"last_message_relayed_at,omitempty"`
	LastPagingToken       string            `json:"last_paging_token,omitempty"`
	LastMessages          []json.RawMessage `json:"last_messages"`
	LastError             string            `json:"last_error,omitempty"`
}
