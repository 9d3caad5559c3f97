// Package services holds the error taxonomy shared by pipeline stages and the
// HTTP clients that talk to external APIs.
package services
