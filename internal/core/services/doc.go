// Package services holds the knowledge core's use cases. Each service
// implements a driving port and talks to infrastructure only through
// driven ports.
package services
