// Package memory provides an in-process identity provider for tests and demos.
package memory
