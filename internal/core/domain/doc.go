// Package domain holds the entities shared by every layer of the
// knowledge core and the sentinel errors they fail with.
//
// A Document is split into Chunks, each embedded into a VectorRecord and
// tracked by a VectorizationJob until it reaches a terminal status.
// Queries produce RetrievalMatches that the ranking engine turns into
// RankedMatches according to a RankingConfig. MaintenanceTask and TaskRun
// describe the scheduled recovery and pruning of jobs.
//
// The package depends on the standard library only.
package domain
