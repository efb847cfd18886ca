// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package services

import "context"

// RunFunc adapts a blocking "run until ctx is canceled" function to
// suture.Service. It fits any component whose entry point already has the
// shape func(context.Context) error, such as auditpipe.Router.Run.
type RunFunc struct {
	name string
	run  func(ctx context.Context) error
}

// NewRunFunc wraps run as a named suture.Service.
func NewRunFunc(name string, run func(ctx context.Context) error) *RunFunc {
	return &RunFunc{name: name, run: run}
}

// Serve implements suture.Service.
func (r *RunFunc) Serve(ctx context.Context) error {
	return r.run(ctx)
}

// String implements fmt.Stringer for suture's log output.
func (r *RunFunc) String() string {
	return r.name
}

// StartStopper is satisfied by components that launch background work on
// Start and block until it drains on Stop, such as auditpipe.Pipeline and
// retention.Job.
type StartStopper interface {
	Start(ctx context.Context)
	Stop()
}

// StartStopService adapts a StartStopper to suture.Service: Serve calls
// Start, waits for ctx to be canceled, then calls Stop to drain in-flight
// work before returning.
type StartStopService struct {
	name string
	inner StartStopper
}

// NewStartStopService wraps inner as a named suture.Service.
func NewStartStopService(name string, inner StartStopper) *StartStopService {
	return &StartStopService{name: name, inner: inner}
}

// Serve implements suture.Service.
func (s *StartStopService) Serve(ctx context.Context) error {
	s.inner.Start(ctx)
	<-ctx.Done()
	s.inner.Stop()
	return ctx.Err()
}

// String implements fmt.Stringer for suture's log output.
func (s *StartStopService) String() string {
	return s.name
}
