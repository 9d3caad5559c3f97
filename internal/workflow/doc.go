// Package workflow orchestrates queue processing: a pool of workers claims
// pending recordings and drives each one through the pipeline stages,
// heartbeating while a stage runs and turning stage failures into error
// reports without stopping the other workers.
package workflow
