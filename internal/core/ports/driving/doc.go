// Package driving defines the use cases the command line drives:
// vectorizing documents, retrieving and ranking chunks, and job
// maintenance. Implementations live in internal/core/services.
package driving
