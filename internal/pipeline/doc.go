// Package pipeline sequences the external mappability tools.
//
// Stages run in order (index, map, locate, sizes, convert); the tasks of a
// stage fan out to Config.Jobs workers. A step is skipped when its outputs
// exist and the stamp stored for it matches the fingerprint of its inputs.
package pipeline
