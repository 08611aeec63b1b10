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

import "time"

// CredentialsRequest is the body of the register and login endpoints
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries a freshly issued API key
type LoginResponse struct {
	ApiKey string `json:"apiKey"`
}

// InfoResponse describes the caller's deposit address and balance
type InfoResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// PayRequest is the body of the pay endpoint
type PayRequest struct {
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
}

// PayResponse reports a confirmed outbound payment
type PayResponse struct {
	ReservationId   string `json:"reservation_id"`
	TransactionHash string `json:"transaction_hash"`
	Amount          string `json:"amount"`
}

// ErrorResponse is the JSON body of a failed request
type ErrorResponse struct {
	Message string `json:"message,omitempty"`
}

// TransactionRecord is one entry of a user's balance history
type TransactionRecord struct {
	Id              string    `json:"id"`
	Type            string    `json:"type"`
	Amount          string    `json:"amount"`
	TransactionHash string    `json:"transaction_hash,omitempty"`
	Reference       string    `json:"reference,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}
