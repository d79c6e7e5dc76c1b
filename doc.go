// Package amcp implements an AMCP protocol engine, the line based text protocol used to control
// broadcast playout servers. It turns raw command lines received from TCP, websocket or stdio
// sessions into typed invocations, resolves them against a command registry, enforces
// per-channel locks and client-side batching, and formats the numeric replies clients expect.
//
// The package does not render media. Command handlers reach the playout engine through the
// Executor interface, so the engine itself can live in another process or be replaced by an
// in-memory implementation for testing.
package amcp
