// Package leaderelect enforces exactly one active trainer consumer per
// consumer-group identity, using a kubernetes Lease as the coordination
// primitive. The previous trainer assumed a single replica; this lets
// it run with hot standbys instead.
package leaderelect

import (
	"context"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/optiq-io/qbrix/internal/qlog"
)

// Config names the lease this trainer replica competes for.
type Config struct {
	LockName  string
	Namespace string
	Identity  string
}

// Run blocks until the named lease is acquired, invokes onStart, and
// keeps renewing the lease; when leadership is lost or ctx is canceled
// it invokes onStop and returns. It does not try to reacquire the lease.
func Run(ctx context.Context, client kubernetes.Interface, cfg Config, onStart func(context.Context), onStop func()) error {
	lock := &resourcelock.LeaseLock{
		LeaseMeta: metaObjectMeta(cfg.LockName, cfg.Namespace),
		Client:    client.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: cfg.Identity,
		},
	}

	leaderelection.RunOrDie(ctx, leaderelection.LeaderElectionConfig{
		Lock:            lock,
		ReleaseOnCancel: true,
		LeaseDuration:   defaultLeaseDuration,
		RenewDeadline:   defaultRenewDeadline,
		RetryPeriod:     defaultRetryPeriod,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(ctx context.Context) {
				qlog.Infoln("leaderelect: acquired lease", cfg.LockName)
				onStart(ctx)
			},
			OnStoppedLeading: func() {
				qlog.Warningln("leaderelect: lost lease", cfg.LockName)
				onStop()
			},
			OnNewLeader: func(identity string) {
				if identity != cfg.Identity {
					qlog.Infoln("leaderelect: new leader", identity)
				}
			},
		},
	})
	return nil
}
