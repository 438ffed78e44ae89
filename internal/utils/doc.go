// Package utils provides shared helpers for pantry.
//
// # Filesystem Utilities
//
//   - FindKnifeConfig: walks up from a directory looking for .chef/knife.rb
//   - ExpandHome, ResolvePath: turn user supplied paths into absolute ones
//
// # System Utilities
//
//   - GetUsername, GetHostname: operating system identity
//   - DefaultNodeName: a node name derived from the hostname
//
// # Terminal Utilities
//
//   - IsStdoutTerminal: decides whether spinners and colors make sense
package utils
