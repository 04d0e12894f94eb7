// Package transport defines the link abstraction between agent sessions
// and the radio backends. Two implementations exist: transport/radio dials
// the radio bridge daemon over TCP, transport/sim runs agents in-process.
// Sessions never know which one they are talking to.
package transport
