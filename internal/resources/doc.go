// Package resources tracks temporary artifacts and watches host memory, CPU,
// and disk so the pipeline backs off before the machine does.
package resources
