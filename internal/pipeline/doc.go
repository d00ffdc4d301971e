// Package pipeline runs a job's stages: prompt resolution, image generation,
// post-processing, and publishing.
//
// Each stage is a stage.Handler that talks to collaborators through the
// small interfaces in collaborators.go. Generation fails the job only when no
// image succeeds; post-processing failures degrade to the original image with
// a warning; publishing isolates each (product type, platform) attempt and
// fails only when all of them fail. The Executor reports progress after each
// stage (25, 50, 75, 100) through a callback so the engine can commit it and
// emit progress events.
package pipeline
