package sandbox

import (
	"context"
	"time"
)

// Sandbox is the abstraction every platform-specific implementation
// satisfies Start must be idempotent; Stop must
// guarantee every resource (processes, containers, mounts) is released.
type Sandbox interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Exec(ctx context.Context, cmd string, args []string, timeout time.Duration, cwd string) (ExecutionResult, error)
	Status() Status
	HealthCheck(ctx context.Context) HealthStatus
	Info() Info
}
