// Package common holds helpers shared by the agent commands.
//
// It provides the single-instance guard, host detection for startup logs and
// a small gRPC health client used by the probe command.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
