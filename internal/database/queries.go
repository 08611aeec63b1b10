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

package database

const (
	// User queries
	queryGetActiveUsers = `
		SELECT id, username, created_at, updated_at
		FROM users
		WHERE active = 1
		ORDER BY id`

	queryInsertUser = `
		INSERT OR IGNORE INTO users (username, password_hash) VALUES (?, ?)`

	queryGetUserById = `
		SELECT id, username, created_at, updated_at
		FROM users
		WHERE id = ? AND active = 1`

	queryGetUserByUsername = `
		SELECT id, username, created_at, updated_at
		FROM users
		WHERE username = ? AND active = 1`

	queryGetCredentials = `
		SELECT id, password_hash
		FROM users
		WHERE username = ? AND active = 1`

	// API key queries
	queryUpsertApiKey = `
		INSERT INTO api_keys (user_id, key_hash) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET key_hash = excluded.key_hash, created_at = CURRENT_TIMESTAMP`

	queryFindUserByApiKey = `
		SELECT u.id, u.username, u.created_at, u.updated_at
		FROM api_keys k
		JOIN users u ON u.id = k.user_id
		WHERE k.key_hash = ? AND u.active = 1`

	// Balance queries
	queryGetBalance = `
		SELECT balance
		FROM account_balances
		WHERE user_id = ?`

	queryGetAllBalances = `
		SELECT user_id, balance, reserved, COALESCE(last_transaction_id, ''), version, updated_at
		FROM account_balances
		ORDER BY user_id`

	queryReconcileBalance = `
		SELECT COALESCE(SUM(amount), 0), COALESCE(SUM(reserved_delta), 0)
		FROM transactions
		WHERE user_id = ? AND status = 'confirmed'`

	// Transaction queries
	queryCheckDuplicateTransaction = `
		SELECT id FROM transactions WHERE external_transaction_id = ? LIMIT 1`

	queryGetAccountBalance = `
		SELECT balance, reserved, version
		FROM account_balances
		WHERE user_id = ?`

	queryInsertAccountBalance = `
		INSERT INTO account_balances (user_id, balance, reserved, version)
		VALUES (?, 0, 0, 1)`

	queryInsertTransaction = `
		INSERT INTO transactions (
			id, user_id, transaction_type, amount, reserved_delta, balance_before, balance_after,
			external_transaction_id, transaction_hash, reference, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id, user_id, transaction_type, amount, balance_before, balance_after,
		          external_transaction_id, transaction_hash, reference, status, created_at`

	queryUpdateAccountBalance = `
		UPDATE account_balances
		SET balance = ?, reserved = ?, last_transaction_id = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND version = ?`

	queryInsertJournalEntry = `
		INSERT INTO journal_entries (id, transaction_id, account_type, account_id, debit_amount, credit_amount)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryGetTransactionHistory = `
		SELECT id, user_id, transaction_type, amount, balance_before, balance_after,
		       external_transaction_id, transaction_hash, reference, status, created_at
		FROM transactions
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`

	// Reservation queries
	queryInsertReservation = `
		INSERT INTO payment_reservations (id, user_id, amount, status, created_at, updated_at)
		VALUES (?, ?, ?, 'reserved', ?, ?)`

	queryGetReservation = `
		SELECT id, user_id, amount, COALESCE(transaction_hash, ''), valid_until, status, created_at, updated_at
		FROM payment_reservations
		WHERE id = ?`

	queryAttachTransaction = `
		UPDATE payment_reservations
		SET transaction_hash = ?, valid_until = ?, updated_at = ?
		WHERE id = ? AND status = 'reserved'`

	queryFinalizeReservation = `
		UPDATE payment_reservations
		SET status = ?, transaction_hash = COALESCE(NULLIF(?, ''), transaction_hash), updated_at = ?
		WHERE id = ? AND status = 'reserved'`

	queryListStaleReservations = `
		SELECT id, user_id, amount, COALESCE(transaction_hash, ''), valid_until, status, created_at, updated_at
		FROM payment_reservations
		WHERE status = 'reserved' AND created_at < ?
		ORDER BY created_at
		LIMIT ?`

	// Lease queries
	queryEnsureLock = `
		INSERT OR IGNORE INTO payment_locks (name) VALUES (?)`

	queryLockExists = `
		SELECT COUNT(1) FROM payment_locks WHERE name = ?`

	queryAcquireLease = `
		UPDATE payment_locks
		SET lease_id = ?, expires_at = ?
		WHERE name = ? AND (lease_id IS NULL OR expires_at <= ?)`

	queryReleaseLease = `
		UPDATE payment_locks
		SET lease_id = NULL, expires_at = NULL
		WHERE name = ? AND lease_id = ?`
)
