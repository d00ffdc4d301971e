package stage

import (
	"context"

	"podforge/internal/queue"
)

// Handler describes the contract the pipeline executor needs from each stage.
// Execute mutates the job's Result and Warnings; it never changes Status.
type Handler interface {
	Prepare(context.Context, *queue.Job) error
	Execute(context.Context, *queue.Job) error
	HealthCheck(context.Context) Health
}
