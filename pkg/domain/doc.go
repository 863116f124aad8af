// Package domain holds the core entities of the conversation engine: flow
// definitions, question nodes, transition specs, sessions, and the canonical
// turn request/response shapes. It has no dependencies on adapters or external
// services.
package domain
