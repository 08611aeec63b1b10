package queue

import (
	"bytes"
	"testing"
)

func TestBatch_TryAddRespectsBudget(t *testing.T) {
	batch := NewBatch(10)

	if !batch.TryAdd([]byte("12345")) {
		t.Fatal("Expected first record to fit")
	}
	if !batch.TryAdd([]byte("67890")) {
		t.Fatal("Expected second record to fill the batch exactly")
	}
	if batch.TryAdd([]byte("x")) {
		t.Error("Expected record to be rejected from a full batch")
	}

	if batch.Len() != 2 {
		t.Errorf("Expected 2 records, got %d", batch.Len())
	}
	if batch.Size() != 10 {
		t.Errorf("Expected size 10, got %d", batch.Size())
	}
	if !bytes.Equal(batch.Bodies()[1], []byte("67890")) {
		t.Errorf("Expected second body 67890, got %s", batch.Bodies()[1])
	}
}

func TestBatch_OversizedRecordNeverFits(t *testing.T) {
	batch := NewBatch(4)
	if batch.TryAdd([]byte("12345")) {
		t.Error("Expected oversized record to be rejected by an empty batch")
	}
	if batch.Len() != 0 {
		t.Errorf("Expected empty batch, got %d records", batch.Len())
	}
}

func TestNewBatch_DefaultBudget(t *testing.T) {
	batch := NewBatch(0)
	if !batch.TryAdd(make([]byte, DefaultMaxBatchBytes)) {
		t.Error("Expected a record of the default budget to fit")
	}
}
