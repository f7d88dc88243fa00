// Package persistence stores the reference device's registry on disk so it
// survives restarts, as the registry of a real device does.
package persistence
