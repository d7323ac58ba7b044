// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for pybundle.
//
// Each Cobra command handler delegates to the App composition root, which
// wires the configuration provider and the build pipeline services.
package cmd
