// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

// Package provision defines the boundary between the orchestrator and
// the cloud provisioning collaborator. The orchestrator never talks to
// a cloud API itself: it hands a Driver an instance spec and gets back
// an instance id and address, or an error.
//
// The concrete driver shells out to the provisioning CLI through an
// injected Runner, so executors can be tested against fakes with no
// child processes involved.
package provision
