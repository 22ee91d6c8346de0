// Package memory implements the hybrid memory engine.
//
// Every accepted memory is written to the relational store, which is the
// source of truth for its existence, and indexed in a vector index for
// semantic recall. The two writes fail independently: a durable failure
// rejects the memory, an index failure leaves it saved but unsearchable
// until Reconcile re-indexes it.
//
// Architecture:
//   - Embedder: text to vector conversion (mock, Ollama, ONNX)
//   - Index: vector similarity search with metadata filters (chromem-go)
//   - store.MemoryStore: durable records (SQLite)
//   - Manager: validation, dual writes, ranked search, reconciliation
//
// Search reads only the index. Its denormalized metadata is authoritative
// for ranking.
package memory
