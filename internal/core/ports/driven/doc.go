// Package driven holds the ports the core calls out through: model
// servers, the vector index and persistence.
//
// Required by the pipeline and retrieval services:
//
//   - Chunker and DocumentChunker split document text
//   - EmbeddingProvider turns text into dense vectors
//   - VectorIndex stores and queries vectors per namespace
//   - ChunkStore keeps chunk text, the source of truth behind vector payloads
//   - JobStore keeps vectorization jobs for crash recovery
//   - SchedulerStore keeps maintenance schedules and run history
//   - NormaliserRegistry extracts text from uploaded files
//
// Reranker and RankingConfigProvider may be nil. Without a reranker the
// ranking engine keeps retrieval scores; without a config provider it
// uses DefaultRankingConfig.
//
// This package imports only domain.
package driven
